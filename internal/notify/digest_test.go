package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearpath/clearpath/internal/debt"
)

func fptr(v float64) *float64 { return &v }

func TestDueSoonDigestEmptyInput(t *testing.T) {
	require.Empty(t, DueSoonDigest(nil, time.Now()))
}

func TestDueSoonDigestListsAccountsAndTotal(t *testing.T) {
	ref := time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC)
	due1 := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)
	due2 := time.Date(2026, time.September, 2, 0, 0, 0, 0, time.UTC)

	body := DueSoonDigest([]debt.Account{
		{
			Name:            "Visa",
			InstitutionName: "Chase",
			Owner:           "Darius",
			CurrentBalance:  1523.40,
			MinimumPayment:  fptr(75),
			DueDate:         &due1,
		},
		{
			Name:            "Car Loan",
			InstitutionName: "Ally",
			Owner:           "Katia",
			CurrentBalance:  8200,
			MonthlyPayment:  fptr(310.25),
			DueDate:         &due2,
		},
	}, ref)

	require.Contains(t, body, "Payments due within 7 days")
	require.Contains(t, body, "Friday, August 28, 2026")
	require.Contains(t, body, "Visa (Chase, owner Darius)")
	require.Contains(t, body, "minimum payment $75.00")
	require.Contains(t, body, "monthly payment $310.25")
	require.Contains(t, body, "due Aug 30")
	require.Contains(t, body, "Total due: $385.25")
}

func TestDueSoonDigestMissingDueDate(t *testing.T) {
	body := DueSoonDigest([]debt.Account{
		{Name: "Visa", InstitutionName: "Chase", Owner: "Darius", CurrentBalance: 100},
	}, time.Now())

	require.Contains(t, body, "due unknown")
	require.Contains(t, body, "Total due: $0.00")
}
