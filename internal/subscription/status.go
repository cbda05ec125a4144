// Package subscription derives the vendor subscription card shown on the dashboard.
package subscription

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/identmakers/roots-dashboard/internal/models"
)

// Tier labels.
const (
	TierPaymentDue       = "PAYMENT DUE"
	TierPremium          = "PREMIUM TIER"
	TierFree             = "FREE TIER"
	TierServiceSuspended = "SERVICE SUSPENDED"
	TierExpired          = "EXPIRED TIER"
)

// Status texts.
const (
	StatusPaymentPending       = "Payment Pending"
	StatusCreditsAvailable     = "Credits Available"
	StatusSubscriptionRequired = "Subscription Required"
	StatusServiceActive        = "Service Active"
	StatusServiceSuspended     = "Service Suspended"
	StatusUnknown              = "Unknown"
)

// Level is a coarse severity the UI maps to colours.
type Level string

const (
	LevelOK      Level = "ok"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelMuted   Level = "muted"
)

// Status is the evaluated subscription card.
type Status struct {
	Tier    string  `json:"tier"`
	Status  string  `json:"status"`
	Balance string  `json:"balance"`
	Amount  float64 `json:"amount"`
	Due     bool    `json:"due"`
	Active  bool    `json:"active"`
	Level   Level   `json:"level"`
}

var printer = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR formats a whole-rupee amount with Indian digit grouping.
func FormatINR(amount float64) string {
	return "₹" + printer.Sprint(number.Decimal(amount, number.MaxFractionDigits(0)))
}

// Evaluate derives the card from the vendor account. A nil account means the
// account record does not exist.
func Evaluate(acct *models.VendorAccount) Status {
	if acct == nil {
		return Status{Tier: "", Status: StatusUnknown, Balance: FormatINR(0), Level: LevelMuted}
	}
	active := acct.IsActive == nil || *acct.IsActive

	var st Status
	switch {
	case acct.Due > 0:
		st = Status{
			Tier:    TierPaymentDue,
			Status:  StatusPaymentPending,
			Balance: FormatINR(acct.Due),
			Amount:  acct.Due,
			Due:     true,
			Level:   LevelError,
		}
	case acct.Credits > 0:
		st = Status{
			Tier:    TierPremium,
			Status:  StatusCreditsAvailable,
			Balance: FormatINR(acct.Credits),
			Amount:  acct.Credits,
			Level:   LevelOK,
		}
	default:
		st = Status{
			Tier:    TierFree,
			Status:  StatusSubscriptionRequired,
			Balance: "Activate Subscription",
			Level:   LevelWarning,
		}
	}

	st.Active = active
	if !active {
		st.Status = StatusServiceSuspended
		st.Level = LevelMuted
		st.Tier = TierExpired
		if st.Due {
			st.Tier = TierServiceSuspended
		}
		return st
	}
	if acct.Due == 0 {
		st.Status = StatusServiceActive
	}
	return st
}
