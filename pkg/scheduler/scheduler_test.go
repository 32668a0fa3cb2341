package scheduler

import (
	"testing"
	"time"

	"library-circulation/pkg/circulation"
	"library-circulation/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type noopNotifier struct {
	reminders int
	payments  int
	ready     int
}

func (n *noopNotifier) SendReservationCreated(username, bookUid string, position int) {}
func (n *noopNotifier) SendReservationReady(username, bookUid string, deadline time.Time) {
	n.ready++
}
func (n *noopNotifier) SendReturnReminder(username, bookUid string, dueDate time.Time) {
	n.reminders++
}
func (n *noopNotifier) SendPaymentReminder(username, fineUid string, amount float64) {
	n.payments++
}

type allActive struct{}

func (allActive) IsActive(username string) (bool, error) { return true, nil }

func setupSweepTest() (*gorm.DB, *circulation.Engine, *noopNotifier) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		panic("failed to connect test database")
	}
	db.AutoMigrate(&models.Book{}, &models.Loan{}, &models.Reservation{}, &models.Fine{})
	notifier := &noopNotifier{}
	engine := circulation.NewEngine(db, notifier, allActive{}, 1.0)
	return db, engine, notifier
}

func TestSweepMarksOverdueLoans(t *testing.T) {
	db, engine, notifier := setupSweepTest()

	book := models.Book{BookUid: uuid.New().String(), Name: "Late Book"}
	db.Create(&book)
	loan := models.Loan{
		LoanUid:  uuid.New().String(),
		BookUid:  book.BookUid,
		Username: "alice",
		Status:   models.LoanStatusActive,
		LoanDate: time.Now().AddDate(0, 0, -31),
		DueDate:  time.Now().AddDate(0, 0, -1),
	}
	db.Create(&loan)

	s := New(engine, time.Minute, 7*24*time.Hour)
	s.RunOnce()

	var updated models.Loan
	db.Where("loan_uid = ?", loan.LoanUid).First(&updated)
	assert.Equal(t, models.LoanStatusOverdue, updated.Status)
	assert.Equal(t, 1, notifier.reminders)

	// idempotent: a second sweep finds nothing to flip
	s.RunOnce()
	assert.Equal(t, 1, notifier.reminders)
}

func TestSweepExpiresLapsedPickups(t *testing.T) {
	db, engine, notifier := setupSweepTest()

	book := models.Book{BookUid: uuid.New().String(), Name: "Held Book"}
	db.Create(&book)

	past := time.Now().AddDate(0, 0, -1)
	missed := models.Reservation{
		ReservationUid: uuid.New().String(),
		BookUid:        book.BookUid,
		Username:       "bob",
		Status:         models.ReservationStatusNotified,
		ReservedAt:     time.Now().AddDate(0, 0, -10),
		PickupDeadline: &past,
	}
	db.Create(&missed)
	waiting := models.Reservation{
		ReservationUid: uuid.New().String(),
		BookUid:        book.BookUid,
		Username:       "carol",
		Status:         models.ReservationStatusPending,
		QueuePosition:  1,
		ReservedAt:     time.Now().AddDate(0, 0, -9),
	}
	db.Create(&waiting)

	s := New(engine, time.Minute, 7*24*time.Hour)
	s.RunOnce()

	var bob, carol models.Reservation
	db.Where("reservation_uid = ?", missed.ReservationUid).First(&bob)
	db.Where("reservation_uid = ?", waiting.ReservationUid).First(&carol)

	assert.Equal(t, models.ReservationStatusCancelled, bob.Status)
	assert.Equal(t, models.ReservationStatusNotified, carol.Status)
	assert.NotNil(t, carol.PickupDeadline)
	assert.Equal(t, 1, notifier.ready)
}

func TestSweepRemindsUnpaidFines(t *testing.T) {
	db, engine, notifier := setupSweepTest()

	fine := models.Fine{
		FineUid:    uuid.New().String(),
		LoanUid:    uuid.New().String(),
		Username:   "alice",
		Amount:     5.0,
		FineType:   models.FineTypeLateReturn,
		Status:     models.FineStatusPending,
		IssuedDate: time.Now().AddDate(0, 0, -8),
	}
	db.Create(&fine)
	fresh := models.Fine{
		FineUid:    uuid.New().String(),
		LoanUid:    uuid.New().String(),
		Username:   "bob",
		Amount:     2.0,
		FineType:   models.FineTypeLateReturn,
		Status:     models.FineStatusPending,
		IssuedDate: time.Now(),
	}
	db.Create(&fresh)

	s := New(engine, time.Minute, 7*24*time.Hour)
	s.RunOnce()

	assert.Equal(t, 1, notifier.payments)

	var old, recent models.Fine
	db.Where("fine_uid = ?", fine.FineUid).First(&old)
	db.Where("fine_uid = ?", fresh.FineUid).First(&recent)
	assert.Equal(t, models.FineStatusNotified, old.Status)
	assert.Equal(t, models.FineStatusPending, recent.Status)
}

func TestStartStop(t *testing.T) {
	_, engine, _ := setupSweepTest()

	s := New(engine, 10*time.Millisecond, 7*24*time.Hour)
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}
