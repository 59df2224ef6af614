// Package messages holds every user-facing text and keyboard of the bot.
package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/chat"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/pricing"
)

const (
	starsSign   = "⭐️"
	progressLen = 5
)

type Catalog struct {
	Prices         pricing.Prices
	LargeFileBytes int64
	WebAppURL      string
	Support        string
}

func (c *Catalog) stars(n int) string {
	return fmt.Sprintf("%d %s", n, starsSign)
}

func (c *Catalog) largeFileLimit() string {
	return humanize.IBytes(uint64(c.LargeFileBytes))
}

func (c *Catalog) back(data string) *chat.Keyboard {
	return chat.NewKeyboard(chat.Row(chat.Callback("◀️ Back", data)))
}

func (c *Catalog) cancelRow() []chat.Button {
	return chat.Row(chat.Callback("❌ Cancel", CBCancelCreation))
}

// MenuView is what the main menu needs to know about the user.
type MenuView struct {
	Welcome  bool
	Admin    bool
	FreeLeft int
	Known    bool
}

func (c *Catalog) MainMenu(v MenuView) (string, *chat.Keyboard) {
	var b strings.Builder
	if v.Welcome {
		b.WriteString("👋 <b>Hi! I'm StoriesWall</b>\n\n")
	} else {
		b.WriteString("👋 <b>StoriesWall</b>\n\n")
	}

	switch {
	case v.Admin:
		b.WriteString("⚡️ <b>Admin mode</b>\n🎁 Unlimited free creations!\n\n")
	case v.Known && v.FreeLeft > 0:
		noun := "creations"
		if v.FreeLeft == 1 {
			noun = "creation"
		}
		fmt.Fprintf(&b, "🎁 <b>You have %d free %s left!</b>\n\n", v.FreeLeft, noun)
	default:
		fmt.Fprintf(&b, "💫 <b>Prices:</b>\n• Standard wall: %s\n• Extended (%d parts): +%s\n\n",
			c.stars(c.Prices.Base), models.MaxParts, c.stars(c.Prices.Extended))
	}

	if v.Welcome {
		b.WriteString("I turn one picture into a wall of stories for your profile.\n\nTap the button below to start! 👇")
	} else {
		b.WriteString("Make a wall of stories! 🎨")
	}

	rows := [][]chat.Button{
		chat.Row(chat.Callback("🎨 Create a wall", CBStartCreation)),
	}
	if c.WebAppURL != "" {
		rows = append(rows, chat.Row(chat.WebApp("✨ Try the preview", c.WebAppURL)))
	}
	rows = append(rows,
		chat.Row(chat.Callback("📖 How it works", CBHelp), chat.Callback("📊 My stats", CBStats)),
		chat.Row(chat.Callback("💎 Examples", CBExamples)),
	)
	if v.Admin {
		rows = append(rows, chat.Row(chat.Callback("⚙️ Admin panel", CBAdminPanel)))
	}
	return b.String(), chat.NewKeyboard(rows...)
}

func (c *Catalog) UploadPrompt() (string, *chat.Keyboard) {
	return "📤 <b>Upload your picture</b>\n\n" +
			"Send me the image you want to turn into a wall.\n\n" +
			"💡 <b>Tip:</b> send it as a file, uncompressed, for the best quality!",
		chat.NewKeyboard(c.cancelRow())
}

func (c *Catalog) PendingExists() (string, *chat.Keyboard) {
	return "⚠️ <b>You already have an unfinished creation!</b>\n\nDiscard it and start a new one?",
		chat.NewKeyboard(
			chat.Row(chat.Callback("✅ Yes, start over", CBCancelAndStart)),
			chat.Row(chat.Callback("◀️ Back", CBBackToMain)),
		)
}

func (c *Catalog) NotAnImage() string {
	return "❌ That is not an image. Please try again."
}

func (c *Catalog) DecodeFailed() string {
	return "❌ I couldn't read that image. Please try another one."
}

func (c *Catalog) ImageTooLarge() string {
	return "❌ That image is too large or too narrow to cut into a wall. Please send another one."
}

func (c *Catalog) UnexpectedInput() string {
	return "🤔 I wasn't expecting that right now. Use the buttons above or send /start."
}

func (c *Catalog) NoPending() string {
	return "❌ Creation data not found. Please start again."
}

func (c *Catalog) Failure() string {
	return fmt.Sprintf("❌ Something went wrong while creating your wall.\nPlease try again or contact %s", c.Support)
}

func (c *Catalog) PaymentWithoutCreation() string {
	return fmt.Sprintf("❌ Your payment arrived but I couldn't find the creation it was for. Please contact support: %s", c.Support)
}

func (c *Catalog) Expired() string {
	return "⌛️ Your unfinished creation expired and was discarded. Send /start to make a new one."
}

// ImageInfo describes an accepted upload for the part count prompt.
type ImageInfo struct {
	Size      models.Dimensions
	Bytes     int64
	LargeFile bool
	Admin     bool
	FreeLeft  int
}

func (c *Catalog) ImageReceived(info ImageInfo) (string, *chat.Keyboard) {
	var b strings.Builder
	b.WriteString("✅ <b>Image received!</b>\n\n")
	fmt.Fprintf(&b, "📐 Size: %dx%d\n", info.Size.Width, info.Size.Height)
	fmt.Fprintf(&b, "📦 File size: %s\n\n", humanize.IBytes(uint64(info.Bytes)))

	if info.LargeFile {
		fmt.Fprintf(&b, "⚠️ <b>File is larger than %s</b>\nExtra charge: %s\n\n", c.largeFileLimit(), c.stars(c.Prices.LargeFile))
	}

	switch {
	case info.Admin:
		b.WriteString("⚡️ Every option is free for you\n\n")
	case info.FreeLeft > 0:
		fmt.Fprintf(&b, "🎁 Free creations left: %d\n", info.FreeLeft)
		if info.LargeFile {
			fmt.Fprintf(&b, "💰 With the large file: %s\n", c.stars(c.Prices.LargeFile))
		}
		b.WriteString("\n")
	default:
		total := c.Prices.Base
		if info.LargeFile {
			total += c.Prices.LargeFile
		}
		fmt.Fprintf(&b, "💰 Creation: %s\n💎 %d parts: +%s\n\n", c.stars(total), models.MaxParts, c.stars(c.Prices.Extended))
	}
	b.WriteString("Choose the number of parts:")

	return b.String(), c.partsKeyboard(info.Admin)
}

func (c *Catalog) partsKeyboard(admin bool) *chat.Keyboard {
	var rows [][]chat.Button
	var row []chat.Button
	for _, n := range models.PartCounts {
		if n == models.MaxParts {
			continue
		}
		row = append(row, chat.Callback(fmt.Sprintf("%d parts", n), PartsData(n)))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	label := fmt.Sprintf("%d parts", models.MaxParts)
	if !admin {
		label = fmt.Sprintf("%d parts 🔒 (+%s)", models.MaxParts, c.stars(c.Prices.Extended))
	}
	rows = append(rows, chat.Row(chat.Callback(label, PartsData(models.MaxParts))), c.cancelRow())
	return chat.NewKeyboard(rows...)
}

func (c *Catalog) FitPrompt() (string, *chat.Keyboard) {
	return "⚙️ <b>Choose how the picture fits</b>\n\n" +
			"✂️ <b>Crop (cover)</b>: the picture fills the whole wall, the overflow is cut off.\n" +
			"<i>Best for most photos.</i>\n\n" +
			"🖼 <b>Fit (contain)</b>: the whole picture stays visible, black bars may appear on the sides.\n" +
			"<i>Best for tall photos.</i>",
		chat.NewKeyboard(
			chat.Row(chat.Callback("✂️ Crop (cover)", FitData(models.FitCover))),
			chat.Row(chat.Callback("🖼 Fit (contain)", FitData(models.FitContain))),
			c.cancelRow(),
		)
}

// CoverTooLarge offers the fit mode again when cropping would need an
// oversized intermediate image.
func (c *Catalog) CoverTooLarge(parts int) (string, *chat.Keyboard) {
	return fmt.Sprintf("⚠️ This picture is too wide to crop into %d parts.\n\n"+
			"Choose «Fit (contain)» or cancel and pick fewer parts.", parts),
		chat.NewKeyboard(
			chat.Row(chat.Callback("🖼 Fit (contain)", FitData(models.FitContain))),
			c.cancelRow(),
		)
}

func modeName(mode models.FitMode) string {
	if mode == models.FitCover {
		return "Crop"
	}
	return "Fit"
}

func (c *Catalog) Summary(parts int, mode models.FitMode) (string, *chat.Keyboard) {
	text := fmt.Sprintf("👍 <b>Great!</b>\n\n<b>Your choice:</b>\n• %d parts\n• Mode: «%s»\n\n"+
		"💡 <b>Tip:</b> before creating you can see how the wall will look in your profile. "+
		"Tap «Preview» and upload the same picture.", parts, modeName(mode))

	rows := [][]chat.Button{}
	if c.WebAppURL != "" {
		rows = append(rows, chat.Row(chat.WebApp("✨ Preview", c.WebAppURL)))
	}
	rows = append(rows, chat.Row(chat.Callback("✅ Create", CBCreateNow)), c.cancelRow())
	return text, chat.NewKeyboard(rows...)
}

func (c *Catalog) PriceBreakdown(parts int, q pricing.Quote) (string, *chat.Keyboard) {
	var b strings.Builder
	fmt.Fprintf(&b, "💫 <b>Wall of %d parts</b>\n\n<b>Price:</b>\n", parts)
	if q.Base {
		fmt.Fprintf(&b, "• Creation: %s\n", c.stars(c.Prices.Base))
	}
	if q.Extended {
		fmt.Fprintf(&b, "• Extended (%d): %s\n", models.MaxParts, c.stars(c.Prices.Extended))
	}
	if q.LargeFile {
		fmt.Fprintf(&b, "• Large file (>%s): %s\n", c.largeFileLimit(), c.stars(c.Prices.LargeFile))
	}
	fmt.Fprintf(&b, "\n<b>Total: %s</b>", c.stars(q.Total))

	return b.String(), chat.NewKeyboard(
		chat.Row(chat.Callback("💳 Pay "+c.stars(q.Total), PayData(q.Total))),
		c.cancelRow(),
	)
}

func (c *Catalog) InvoiceTitle(parts int) string {
	return fmt.Sprintf("Wall of %d parts", parts)
}

func (c *Catalog) InvoiceDescription() string {
	return "A wall of stories for your profile"
}

// InvoicePayload identifies an invoice as storieswall_<user>_<price>_<parts>.
func InvoicePayload(userID int64, price, parts int) string {
	return fmt.Sprintf("storieswall_%d_%d_%d", userID, price, parts)
}

func (c *Catalog) InvoiceSent() string {
	return "💫 Invoice sent!\n\nYour wall will be created right after the payment."
}

func (c *Catalog) InvoiceFailed() string {
	return "❌ Could not create the invoice"
}

func (c *Catalog) CheckoutRejected() string {
	return "This invoice is no longer valid. Please start a new creation."
}

func (c *Catalog) Queued(position int) string {
	return fmt.Sprintf("✅ <b>Order accepted!</b>\n\nYou are <b>#%d</b> in the queue.\n\n"+
		"I'll send the result as soon as it's ready. It can take a few minutes at peak hours.", position)
}

func (c *Catalog) Progress(parts, done int) string {
	percent := 0
	if parts > 0 {
		percent = done * 100 / parts
	}
	filled := min(percent/(100/progressLen), progressLen)
	bar := strings.Repeat("🟦", filled) + strings.Repeat("⬜️", progressLen-filled)
	return fmt.Sprintf("⏳ Your wall of %d parts is in the works...\n\n%s %d%%\nProcessed: %d/%d", parts, bar, percent, done, parts)
}

func (c *Catalog) Packing() string {
	return "📦 Packing files..."
}

func (c *Catalog) Sending() string {
	return "📤 Sending the file..."
}

// DeliveryCaption goes with the archive. Upload order matters: the last
// part has to be posted first.
func (c *Catalog) DeliveryCaption(parts int) string {
	return fmt.Sprintf("✅ <b>Done!</b>\n\nYour wall of %d parts is ready! 🎨\n\n"+
		"📌 <b>Important:</b> post the stories <b>in reverse order</b> "+
		"(start with the last picture, story_%02d.png, and finish with story_01.png)!\n\nGood luck! 🚀", parts, parts)
}

func (c *Catalog) CreateAnother() string {
	return "Create another wall? 😊"
}

func (c *Catalog) Help() (string, *chat.Keyboard) {
	return "📖 <b>How to make a wall of stories</b>\n\n" +
			"1️⃣ Tap «Create a wall»\n" +
			"2️⃣ Send the picture (better as a file!)\n" +
			fmt.Sprintf("3️⃣ Choose the number of parts (%d-%d)\n", models.MinParts, models.MaxParts) +
			"4️⃣ Choose how the picture fits\n" +
			"5️⃣ Pay if needed\n" +
			"6️⃣ Get an archive with the parts\n" +
			"7️⃣ Post them to your profile <b>IN REVERSE ORDER</b> ⬆️\n\n" +
			"✨ <b>IMPORTANT:</b> start with the last picture! With 9 parts, post story_09.png first, then story_08.png and so on.\n\n" +
			"💡 <b>Tip:</b> send photos uncompressed (as a file) for the best quality!",
		c.back(CBBackToMain)
}

func (c *Catalog) Examples() (string, *chat.Keyboard) {
	return "💎 <b>Walls worth a look:</b>\n\n" +
			"✨ @AlliSighs (developer)\n" +
			"✨ @awlxa\n" +
			"✨ @monaki\n" +
			"✨ @detochka\n" +
			"✨ @mcduck\n" +
			"✨ @alexzackerman\n\n" +
			"Get inspired and make yours! 🎨",
		c.back(CBBackToMain)
}

const dateLayout = "02.01.2006 15:04"

func (c *Catalog) UserStats(rec models.UserRecord, agg models.AggregateStats) (string, *chat.Keyboard) {
	var b strings.Builder
	b.WriteString("📊 <b>Your stats</b>\n\n")
	fmt.Fprintf(&b, "🎨 Walls created: <b>%d</b>\n", rec.CreatedCount)
	fmt.Fprintf(&b, "💰 Stars spent: <b>%d</b> %s\n", rec.TotalPaid, starsSign)
	if rec.LastCreation != nil {
		fmt.Fprintf(&b, "📅 Last one: %s\n", rec.LastCreation.Format(dateLayout))
	}
	fmt.Fprintf(&b, "\n<b>Overall:</b>\n👥 Users: %d\n🎨 Walls created: %d\n", agg.TotalUsers, agg.TotalCreations)
	return b.String(), c.back(CBBackToMain)
}

func (c *Catalog) AdminPanel() (string, *chat.Keyboard) {
	return "⚙️ <b>Admin panel</b>\n\nChoose an action:",
		chat.NewKeyboard(
			chat.Row(chat.Callback("📊 Full stats", CBAdminStats)),
			chat.Row(chat.Callback("◀️ Back", CBBackToMain)),
		)
}

func (c *Catalog) AdminStats(agg models.AggregateStats, at time.Time) (string, *chat.Keyboard) {
	var b strings.Builder
	b.WriteString("📊 <b>Bot stats</b>\n\n")
	fmt.Fprintf(&b, "👥 Users: <b>%d</b>\n", agg.TotalUsers)
	fmt.Fprintf(&b, "🎨 Walls created: <b>%d</b>\n", agg.TotalCreations)
	fmt.Fprintf(&b, "💰 Paid operations: <b>%d</b>\n", agg.TotalPaid)
	fmt.Fprintf(&b, "%s Stars earned: <b>%d</b>\n\n", starsSign, agg.TotalEarned)
	b.WriteString("<b>Popular sizes:</b>\n")
	for _, n := range models.PartCounts {
		if count := agg.ByParts[n]; count > 0 {
			fmt.Fprintf(&b, "  • %d parts: %d times\n", n, count)
		}
	}
	fmt.Fprintf(&b, "\n📅 %s", at.Format(dateLayout))
	return b.String(), c.back(CBAdminPanel)
}

func (c *Catalog) AccessDenied() string {
	return "❌ Access denied"
}
