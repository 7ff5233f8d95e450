// Package debt implements the ClearPath debt ledger: account categorization,
// filtering, payment aggregation and due-soon detection, plus the service and
// persistence layers behind the debt-tracker API.
package debt

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Category is one of the ten fixed buckets used for filtering and aggregation.
type Category string

const (
	CategoryCreditCards   Category = "credit_cards"
	CategoryPersonalLoans Category = "personal_loans"
	CategoryCarLoans      Category = "car_loans"
	CategoryMortgages     Category = "mortgages"
	CategoryStudentLoans  Category = "student_loans"
	CategoryTaxDebt       Category = "tax_debt"
	CategoryBusinessDebt  Category = "business_debt"
	CategoryMedical       Category = "medical"
	CategoryRent          Category = "rent"
	CategoryOther         Category = "other"
)

// Categories lists every bucket in display order.
var Categories = []Category{
	CategoryCreditCards,
	CategoryPersonalLoans,
	CategoryCarLoans,
	CategoryMortgages,
	CategoryStudentLoans,
	CategoryTaxDebt,
	CategoryBusinessDebt,
	CategoryMedical,
	CategoryRent,
	CategoryOther,
}

// OwnerAll selects every owner in filter operations.
const OwnerAll = "all"

// DueSoonWindowDays is the fixed lookahead for payment reminders.
const DueSoonWindowDays = 7

// VisibilityFilter toggles categories in and out of aggregate views.
// A category missing from the map counts as visible.
type VisibilityFilter map[Category]bool

// Visible reports whether the category is included.
func (f VisibilityFilter) Visible(c Category) bool {
	if f == nil {
		return true
	}
	v, ok := f[c]
	return !ok || v
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Categorize maps an account to exactly one category. Rules are evaluated
// first-match-wins over the lowercased account type and name; the order is
// load-bearing (a "car" loan is a car loan, never a personal loan).
func Categorize(a Account) Category {
	name := strings.ToLower(a.Name)
	typ := AccountType(strings.ToLower(string(a.AccountType)))

	switch {
	case typ == TypeCreditCard || containsAny(name, "card", "visa", "mastercard", "amex", "american express"):
		return CategoryCreditCards
	case typ == TypeMortgage || containsAny(name, "mortgage", "home loan"):
		return CategoryMortgages
	case containsAny(name, "student", "education", "federal student"):
		return CategoryStudentLoans
	case containsAny(name, "car", "auto", "vehicle"):
		return CategoryCarLoans
	case typ == TypeTax || containsAny(name, "tax", "irs"):
		return CategoryTaxDebt
	case typ == TypeBusiness || containsAny(name, "business", "sba"):
		return CategoryBusinessDebt
	case containsAny(name, "medical", "hospital"):
		return CategoryMedical
	case typ == TypeRent || containsAny(name, "rent", "rental", "apartment"):
		return CategoryRent
	case typ == TypeLoan:
		return CategoryPersonalLoans
	default:
		return CategoryOther
	}
}

// FilterAccounts returns the accounts matching the owner filter whose
// category is visible. Relative order is preserved.
func FilterAccounts(accounts []Account, owner string, visible VisibilityFilter) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if owner != OwnerAll && owner != "" && a.Owner != owner {
			continue
		}
		if !visible.Visible(Categorize(a)) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// SelectedSummary aggregates balances over the visible categories.
type SelectedSummary struct {
	Total           float64
	Count           int
	OriginalTotal   float64
	PaidOff         float64
	ProgressPercent float64
}

// SummarizeSelected totals current and original balances for accounts whose
// category is visible, independent of any owner filter. An account with no
// recorded original balance contributes its current balance to the original
// total. ProgressPercent is rounded to one decimal and is 0 when nothing was
// ever owed, so an empty selection never divides by zero.
func SummarizeSelected(accounts []Account, visible VisibilityFilter) SelectedSummary {
	var s SelectedSummary
	for _, a := range accounts {
		if !visible.Visible(Categorize(a)) {
			continue
		}
		s.Count++
		s.Total += a.CurrentBalance
		if a.OriginalBalance != 0 {
			s.OriginalTotal += a.OriginalBalance
		} else {
			s.OriginalTotal += a.CurrentBalance
		}
	}
	s.PaidOff = s.OriginalTotal - s.Total
	if s.OriginalTotal > 0 {
		s.ProgressPercent = math.Round(s.PaidOff/s.OriginalTotal*100*10) / 10
	}
	return s
}

// PaymentFilter restricts which accounts count toward monthly minimums.
type PaymentFilter struct {
	// Month restricts to accounts due in a calendar month, formatted
	// "YYYY-MM". Accounts without a due date are excluded when set.
	Month string
	// Types is an explicit category selection. When nil, Visible decides.
	Types map[Category]bool
	// Visible is the session's visibility filter fallback.
	Visible VisibilityFilter
}

func monthlyContribution(a Account) float64 {
	if a.MinimumPayment != nil {
		return *a.MinimumPayment
	}
	if a.MonthlyPayment != nil {
		return *a.MonthlyPayment
	}
	return 0
}

func monthlyEligible(a Account, owner string, f PaymentFilter) bool {
	if a.IsPaidOff {
		return false
	}
	if owner != "" && a.Owner != owner {
		return false
	}
	c := Categorize(a)
	if f.Types != nil {
		if !f.Types[c] {
			return false
		}
	} else if !f.Visible.Visible(c) {
		return false
	}
	if f.Month != "" {
		if a.DueDate == nil {
			return false
		}
		m, err := time.Parse("2006-01", f.Month)
		if err != nil {
			return false
		}
		if a.DueDate.Year() != m.Year() || a.DueDate.Month() != m.Month() {
			return false
		}
	}
	return true
}

// MonthlyMinimumPayments sums each owner's projected monthly payment over the
// unpaid accounts passing the filter. The contribution per account is its
// minimum payment, falling back to its monthly payment, else zero.
func MonthlyMinimumPayments(accounts []Account, f PaymentFilter) map[string]float64 {
	byOwner := make(map[string]float64)
	for _, a := range accounts {
		if !monthlyEligible(a, "", f) {
			continue
		}
		byOwner[a.Owner] += monthlyContribution(a)
	}
	return byOwner
}

// OwnerMonthlyMinimum is MonthlyMinimumPayments restricted to a single owner,
// returned as a scalar.
func OwnerMonthlyMinimum(accounts []Account, owner string, f PaymentFilter) float64 {
	var sum float64
	for _, a := range accounts {
		if !monthlyEligible(a, owner, f) {
			continue
		}
		sum += monthlyContribution(a)
	}
	return sum
}

// DueSoon reports whether the account's due date falls within the reminder
// window: at least today and at most seven days out, measured in whole days
// from midnight of the reference time.
func DueSoon(a Account, ref time.Time) bool {
	if a.DueDate == nil {
		return false
	}
	midnight := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	days := int(math.Ceil(a.DueDate.Sub(midnight).Hours() / 24))
	return days >= 0 && days <= DueSoonWindowDays
}

// DueSoonAccounts returns unpaid accounts with an upcoming due date, skipping
// dismissed notification ids. Order is preserved. Dismissals live only in the
// caller's session; they are not persisted anywhere.
func DueSoonAccounts(accounts []Account, ref time.Time, dismissed map[int64]struct{}) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.IsPaidOff || a.DueDate == nil {
			continue
		}
		if _, ok := dismissed[a.ID]; ok {
			continue
		}
		if !DueSoon(a, ref) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// AvailableMonths lists the distinct "YYYY-MM" keys of unpaid accounts' due
// dates, sorted ascending. Feeds the month picker.
func AvailableMonths(accounts []Account) []string {
	seen := make(map[string]struct{})
	for _, a := range accounts {
		if a.DueDate == nil || a.IsPaidOff {
			continue
		}
		seen[a.DueDate.Format("2006-01")] = struct{}{}
	}
	months := make([]string, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}
