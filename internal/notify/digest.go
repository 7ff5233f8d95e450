package notify

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/clearpath/clearpath/internal/debt"
)

// DueSoonDigest renders the daily reminder body for accounts with payments
// coming up inside the reminder window. Empty input yields an empty string
// and the caller skips sending.
func DueSoonDigest(accounts []debt.Account, ref time.Time) string {
	if len(accounts) == 0 {
		return ""
	}
	p := message.NewPrinter(language.AmericanEnglish)

	var b strings.Builder
	p.Fprintf(&b, "Payments due within %d days as of %s:\n\n", debt.DueSoonWindowDays, ref.Format("Monday, January 2, 2006"))
	for _, a := range accounts {
		due := "unknown"
		if a.DueDate != nil {
			due = a.DueDate.Format("Jan 2")
		}
		p.Fprintf(&b, "- %s (%s, owner %s): balance $%.2f", a.Name, a.InstitutionName, a.Owner, a.CurrentBalance)
		if a.MinimumPayment != nil {
			p.Fprintf(&b, ", minimum payment $%.2f", *a.MinimumPayment)
		} else if a.MonthlyPayment != nil {
			p.Fprintf(&b, ", monthly payment $%.2f", *a.MonthlyPayment)
		}
		p.Fprintf(&b, ", due %s\n", due)
	}

	var total float64
	for _, a := range accounts {
		if a.MinimumPayment != nil {
			total += *a.MinimumPayment
		} else if a.MonthlyPayment != nil {
			total += *a.MonthlyPayment
		}
	}
	p.Fprintf(&b, "\nTotal due: $%.2f\n", total)
	return b.String()
}
