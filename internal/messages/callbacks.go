package messages

import (
	"strconv"
	"strings"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

// Callback payloads carried by inline buttons.
const (
	CBStartCreation  = "start_creation"
	CBCancelAndStart = "cancel_and_start"
	CBCancelCreation = "cancel_creation"
	CBCreateNow      = "create_now"
	CBPay            = "pay"
	CBHelp           = "help"
	CBStats          = "stats"
	CBExamples       = "examples"
	CBBackToMain     = "back_to_main"
	CBAdminPanel     = "admin_panel"
	CBAdminStats     = "admin_stats"

	PartsPrefix = "parts_"
	FitPrefix   = "fit_"
	PayPrefix   = CBPay + "_"
)

func PartsData(parts int) string {
	return PartsPrefix + strconv.Itoa(parts)
}

func FitData(mode models.FitMode) string {
	return FitPrefix + string(mode)
}

// PayData keeps the quoted total in the button so a stale invoice button is
// recognisable in logs.
func PayData(total int) string {
	return PayPrefix + strconv.Itoa(total)
}

// Split separates a prefixed payload such as "parts_9" into its prefix and
// value. Payloads without a known prefix come back unchanged with an empty value.
func Split(data string) (string, string) {
	for _, prefix := range []string{PartsPrefix, FitPrefix, PayPrefix} {
		if strings.HasPrefix(data, prefix) {
			return prefix, strings.TrimPrefix(data, prefix)
		}
	}
	return data, ""
}
