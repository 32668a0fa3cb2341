package circulation

import (
	"library-circulation/pkg/models"
)

// Availability is never stored on the book row. Both predicates are computed
// from the book's freshly loaded loans and reservations on every check, so a
// concurrent write can never leave a stale flag behind.

// IsAvailable reports whether a book can be borrowed directly: no loan is
// out (active or overdue), nobody is waiting in the pending queue, and the
// book is not held for a notified pickup.
func IsAvailable(loans []models.Loan, reservations []models.Reservation) bool {
	if hasOpenLoan(loans) {
		return false
	}
	for _, r := range reservations {
		if r.Status == models.ReservationStatusPending || r.Status == models.ReservationStatusNotified {
			return false
		}
	}
	return true
}

// IsAvailableForPickup reports whether a book is being held for a notified
// reservation: no loan is out and at least one reservation is NOTIFIED.
func IsAvailableForPickup(loans []models.Loan, reservations []models.Reservation) bool {
	if hasOpenLoan(loans) {
		return false
	}
	for _, r := range reservations {
		if r.Status == models.ReservationStatusNotified {
			return true
		}
	}
	return false
}

func hasOpenLoan(loans []models.Loan) bool {
	for _, l := range loans {
		if l.Status == models.LoanStatusActive || l.Status == models.LoanStatusOverdue {
			return true
		}
	}
	return false
}
