package messages

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/chat"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/pricing"
)

type UserSource interface {
	GetUserRecord(ctx context.Context, userID int64) (models.UserRecord, error)
	IsPrivilegedUser(userID int64) bool
}

// Menu renders the main menu for a particular user.
type Menu struct {
	catalog *Catalog
	users   UserSource
	logger  zerolog.Logger
}

func NewMenu(catalog *Catalog, users UserSource, logger zerolog.Logger) *Menu {
	return &Menu{catalog: catalog, users: users, logger: logger}
}

func (m *Menu) Render(ctx context.Context, userID int64, welcome bool) (string, *chat.Keyboard) {
	view := MenuView{Welcome: welcome, Admin: m.users.IsPrivilegedUser(userID)}
	if !view.Admin {
		rec, err := m.users.GetUserRecord(ctx, userID)
		if err != nil {
			m.logger.Error().Err(err).Int64("user_id", userID).Msg("load user for menu")
		} else {
			view.Known = true
			view.FreeLeft = pricing.FreeLeft(rec.CreatedCount, m.catalog.Prices)
		}
	}
	return m.catalog.MainMenu(view)
}
