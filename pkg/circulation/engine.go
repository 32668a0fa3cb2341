package circulation

import (
	"errors"
	"time"

	"library-circulation/pkg/apperrors"
	"library-circulation/pkg/models"

	"gorm.io/gorm"
)

const (
	loanPeriodDays     = 30
	pickupBusinessDays = 3
)

// NotificationDispatcher is the outbound notification contract. Delivery is
// fire-and-forget: implementations must never fail the calling operation.
type NotificationDispatcher interface {
	SendReservationCreated(username, bookUid string, position int)
	SendReservationReady(username, bookUid string, deadline time.Time)
	SendReturnReminder(username, bookUid string, dueDate time.Time)
	SendPaymentReminder(username, fineUid string, amount float64)
}

type MembershipStatusProvider interface {
	IsActive(username string) (bool, error)
}

// Engine bundles the circulation components over one database. MakeLoan and
// the queue mutations share a per-book lock registry so that availability
// checks and the writes they guard stay mutually exclusive per book.
type Engine struct {
	Loans        *LoanManager
	Reservations *ReservationQueue
	Fees         *FeeAssessor
}

func NewEngine(db *gorm.DB, notifier NotificationDispatcher, membership MembershipStatusProvider, dailyFineRate float64) *Engine {
	locks := newBookLocks()
	fees := &FeeAssessor{db: db, DailyRate: dailyFineRate, notifier: notifier}
	queue := &ReservationQueue{db: db, locks: locks, notifier: notifier, membership: membership}
	loans := &LoanManager{db: db, locks: locks, fees: fees, notifier: notifier, queue: queue}
	return &Engine{Loans: loans, Reservations: queue, Fees: fees}
}

func findBook(db *gorm.DB, bookUid string) (models.Book, error) {
	var book models.Book
	err := db.Where("book_uid = ?", bookUid).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return book, apperrors.NotFound("book", bookUid)
	}
	if err != nil {
		return book, apperrors.Persistence("find book", err)
	}
	return book, nil
}

func loadBookLoans(db *gorm.DB, bookUid string) ([]models.Loan, error) {
	var loans []models.Loan
	if err := db.Where("book_uid = ?", bookUid).Find(&loans).Error; err != nil {
		return nil, apperrors.Persistence("load book loans", err)
	}
	return loans, nil
}

func loadBookReservations(db *gorm.DB, bookUid string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	if err := db.Where("book_uid = ?", bookUid).Find(&reservations).Error; err != nil {
		return nil, apperrors.Persistence("load book reservations", err)
	}
	return reservations, nil
}

// addBusinessDays advances t by n days, skipping Saturdays and Sundays.
func addBusinessDays(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return t
}
