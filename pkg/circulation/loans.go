package circulation

import (
	"errors"
	"time"

	"library-circulation/pkg/apperrors"
	"library-circulation/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoanManager owns the loan lifecycle: ACTIVE on creation, RETURNED on
// return (possibly via OVERDUE), LOST only through an explicit report.
// At most one ACTIVE or OVERDUE loan exists per book; the per-book lock
// keeps the availability check and the insert atomic.
type LoanManager struct {
	db       *gorm.DB
	locks    *bookLocks
	fees     *FeeAssessor
	queue    *ReservationQueue
	notifier NotificationDispatcher
}

func newLoan(bookUid, username string, now time.Time) models.Loan {
	return models.Loan{
		LoanUid:  uuid.New().String(),
		BookUid:  bookUid,
		Username: username,
		Status:   models.LoanStatusActive,
		LoanDate: now,
		DueDate:  now.AddDate(0, 0, loanPeriodDays),
	}
}

func (m *LoanManager) MakeLoan(bookUid, username string) (models.Loan, error) {
	if _, err := findBook(m.db, bookUid); err != nil {
		return models.Loan{}, err
	}

	unlock := m.locks.lock(bookUid)
	defer unlock()

	loans, err := loadBookLoans(m.db, bookUid)
	if err != nil {
		return models.Loan{}, err
	}
	reservations, err := loadBookReservations(m.db, bookUid)
	if err != nil {
		return models.Loan{}, err
	}
	if !IsAvailable(loans, reservations) {
		return models.Loan{}, apperrors.Violation(apperrors.CodeBookUnavailable, "book %s is not available for loan", bookUid)
	}

	loan := newLoan(bookUid, username, time.Now())
	if err := m.db.Create(&loan).Error; err != nil {
		return models.Loan{}, apperrors.Persistence("create loan", err)
	}
	return loan, nil
}

// ReturnBook closes out a loan, assesses a late fee when past due, and then
// offers the freed book to the head of its waitlist. The queue advance runs
// under the same book lock as the return itself.
func (m *LoanManager) ReturnBook(loanUid string) (models.Loan, error) {
	loan, err := m.findLoan(loanUid)
	if err != nil {
		return models.Loan{}, err
	}

	unlock := m.locks.lock(loan.BookUid)
	defer unlock()

	loan, err = m.findLoan(loanUid)
	if err != nil {
		return models.Loan{}, err
	}
	if loan.Status != models.LoanStatusActive && loan.Status != models.LoanStatusOverdue {
		return models.Loan{}, apperrors.Violation(apperrors.CodeInvalidLoanStatus, "loan %s is %s, not open", loanUid, loan.Status)
	}

	now := time.Now()
	loan.Status = models.LoanStatusReturned
	loan.ReturnDate = &now

	err = m.db.Transaction(func(tx *gorm.DB) error {
		if now.After(loan.DueDate) {
			if err := m.fees.assessLateReturn(tx, &loan, now); err != nil {
				return err
			}
		}
		if err := tx.Save(&loan).Error; err != nil {
			return apperrors.Persistence("save returned loan", err)
		}
		return nil
	})
	if err != nil {
		return models.Loan{}, err
	}

	if err := m.queue.processNextLocked(loan.BookUid); err != nil {
		return models.Loan{}, err
	}
	return loan, nil
}

// ExtendLoan pushes the due date forward by another loan period. Blocked
// whenever anyone is waiting on the book, pending or already notified.
func (m *LoanManager) ExtendLoan(loanUid string) (models.Loan, error) {
	loan, err := m.findLoan(loanUid)
	if err != nil {
		return models.Loan{}, err
	}

	unlock := m.locks.lock(loan.BookUid)
	defer unlock()

	loan, err = m.findLoan(loanUid)
	if err != nil {
		return models.Loan{}, err
	}
	if loan.Status != models.LoanStatusActive {
		return models.Loan{}, apperrors.Violation(apperrors.CodeInvalidLoanStatus, "loan %s is %s, not %s", loanUid, loan.Status, models.LoanStatusActive)
	}

	var waiting int64
	err = m.db.Model(&models.Reservation{}).
		Where("book_uid = ? AND status IN ?", loan.BookUid,
			[]string{models.ReservationStatusPending, models.ReservationStatusNotified}).
		Count(&waiting).Error
	if err != nil {
		return models.Loan{}, apperrors.Persistence("count waiting reservations", err)
	}
	if waiting > 0 {
		return models.Loan{}, apperrors.Violation(apperrors.CodeExtendBlocked, "book %s has reservations waiting", loan.BookUid)
	}

	loan.DueDate = loan.DueDate.AddDate(0, 0, loanPeriodDays)
	if err := m.db.Save(&loan).Error; err != nil {
		return models.Loan{}, apperrors.Persistence("save extended loan", err)
	}
	return loan, nil
}

// GetOverdueLoans is the read side of the overdue sweep: it never flips
// status itself, the scheduler calls MarkOverdue per loan afterwards.
func (m *LoanManager) GetOverdueLoans() ([]models.Loan, error) {
	var loans []models.Loan
	err := m.db.Where("due_date < ? AND status = ?", time.Now(), models.LoanStatusActive).
		Order("due_date asc").
		Find(&loans).Error
	if err != nil {
		return nil, apperrors.Persistence("list overdue loans", err)
	}
	return loans, nil
}

// MarkOverdue flips an ACTIVE loan to OVERDUE and reminds the borrower.
// The locked re-read keeps a concurrent return from being overwritten:
// a loan closed between the sweep's read and this call stays closed.
func (m *LoanManager) MarkOverdue(loanUid string) error {
	loan, err := m.findLoan(loanUid)
	if err != nil {
		return err
	}

	unlock := m.locks.lock(loan.BookUid)
	defer unlock()

	loan, err = m.findLoan(loanUid)
	if err != nil {
		return err
	}
	if loan.Status != models.LoanStatusActive {
		return apperrors.Violation(apperrors.CodeInvalidLoanStatus, "loan %s is %s, not %s", loanUid, loan.Status, models.LoanStatusActive)
	}
	loan.Status = models.LoanStatusOverdue
	if err := m.db.Save(&loan).Error; err != nil {
		return apperrors.Persistence("save overdue loan", err)
	}
	m.notifier.SendReturnReminder(loan.Username, loan.BookUid, loan.DueDate)
	return nil
}

// ReportLost is administrative: the loan ends in the terminal LOST state and
// the borrower is fined for the replacement.
func (m *LoanManager) ReportLost(loanUid string, amount float64, description string) (models.Fine, error) {
	loan, err := m.findLoan(loanUid)
	if err != nil {
		return models.Fine{}, err
	}

	unlock := m.locks.lock(loan.BookUid)
	defer unlock()

	loan, err = m.findLoan(loanUid)
	if err != nil {
		return models.Fine{}, err
	}
	if loan.Status != models.LoanStatusActive && loan.Status != models.LoanStatusOverdue {
		return models.Fine{}, apperrors.Violation(apperrors.CodeInvalidLoanStatus, "loan %s is %s, not open", loanUid, loan.Status)
	}

	var fine models.Fine
	err = m.db.Transaction(func(tx *gorm.DB) error {
		loan.Status = models.LoanStatusLost
		if err := tx.Save(&loan).Error; err != nil {
			return apperrors.Persistence("save lost loan", err)
		}
		fine, err = m.fees.createLostFine(tx, loan.Username, loan.LoanUid, amount, description)
		return err
	})
	if err != nil {
		return models.Fine{}, err
	}
	return fine, nil
}

func (m *LoanManager) findLoan(loanUid string) (models.Loan, error) {
	var loan models.Loan
	err := m.db.Where("loan_uid = ?", loanUid).First(&loan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return loan, apperrors.Violation(apperrors.CodeNotFound, "loan %s not found", loanUid)
	}
	if err != nil {
		return loan, apperrors.Persistence("find loan", err)
	}
	return loan, nil
}
