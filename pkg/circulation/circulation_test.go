package circulation

import (
	"time"

	"library-circulation/pkg/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		panic("failed to connect test database")
	}
	db.AutoMigrate(&models.Book{}, &models.Loan{}, &models.Reservation{}, &models.Fine{})
	return db
}

type recordingNotifier struct {
	created   []string
	ready     []string
	reminders []string
	payments  []string
}

func (n *recordingNotifier) SendReservationCreated(username, bookUid string, position int) {
	n.created = append(n.created, username)
}

func (n *recordingNotifier) SendReservationReady(username, bookUid string, deadline time.Time) {
	n.ready = append(n.ready, username)
}

func (n *recordingNotifier) SendReturnReminder(username, bookUid string, dueDate time.Time) {
	n.reminders = append(n.reminders, username)
}

func (n *recordingNotifier) SendPaymentReminder(username, fineUid string, amount float64) {
	n.payments = append(n.payments, username)
}

type stubMembership struct {
	inactive map[string]bool
	err      error
}

func (m *stubMembership) IsActive(username string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return !m.inactive[username], nil
}

func newTestEngine() (*Engine, *gorm.DB, *recordingNotifier) {
	db := setupTestDB()
	notifier := &recordingNotifier{}
	engine := NewEngine(db, notifier, &stubMembership{}, 1.0)
	return engine, db, notifier
}

func seedBook(db *gorm.DB, name string) models.Book {
	book := models.Book{
		BookUid: uuid.New().String(),
		Name:    name,
	}
	db.Create(&book)
	return book
}

func seedActiveLoan(db *gorm.DB, bookUid, username string, dueDate time.Time) models.Loan {
	loan := models.Loan{
		LoanUid:  uuid.New().String(),
		BookUid:  bookUid,
		Username: username,
		Status:   models.LoanStatusActive,
		LoanDate: time.Now().AddDate(0, 0, -loanPeriodDays),
		DueDate:  dueDate,
	}
	db.Create(&loan)
	return loan
}
