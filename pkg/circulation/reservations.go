package circulation

import (
	"errors"
	"fmt"
	"time"

	"library-circulation/pkg/apperrors"
	"library-circulation/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReservationQueue keeps a strict per-book FIFO over PENDING reservations,
// materialized as dense positions 1..N ordered by reservedAt. Every removal
// from the pending set (cancel, promote, expire, pick) recompacts the
// remainder inside the same transaction, under the book's lock.
type ReservationQueue struct {
	db         *gorm.DB
	locks      *bookLocks
	notifier   NotificationDispatcher
	membership MembershipStatusProvider
}

// CreateReservation enqueues a patron for a book that is currently not
// available. Reserving an available book is rejected: the patron should just
// borrow it.
func (q *ReservationQueue) CreateReservation(bookUid, username string) (models.Reservation, error) {
	active, err := q.membership.IsActive(username)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("membership check for %s: %w", username, err)
	}
	if !active {
		return models.Reservation{}, apperrors.Violation(apperrors.CodeMembershipExpired, "membership of %s is not active", username)
	}

	if _, err := findBook(q.db, bookUid); err != nil {
		if apperrors.IsNotFound(err) {
			return models.Reservation{}, apperrors.Violation(apperrors.CodeBookNotFound, "book %s not found", bookUid)
		}
		return models.Reservation{}, err
	}

	unlock := q.locks.lock(bookUid)
	defer unlock()

	loans, err := loadBookLoans(q.db, bookUid)
	if err != nil {
		return models.Reservation{}, err
	}
	reservations, err := loadBookReservations(q.db, bookUid)
	if err != nil {
		return models.Reservation{}, err
	}
	if IsAvailable(loans, reservations) {
		return models.Reservation{}, apperrors.Violation(apperrors.CodeBookAvailable, "book %s is available, borrow it instead", bookUid)
	}

	pending := 0
	for _, r := range reservations {
		if r.Status == models.ReservationStatusPending {
			pending++
		}
		if r.Username == username &&
			(r.Status == models.ReservationStatusPending || r.Status == models.ReservationStatusNotified) {
			return models.Reservation{}, apperrors.Violation(apperrors.CodeDuplicateReservation, "%s already has a reservation for book %s", username, bookUid)
		}
	}

	reservation := models.Reservation{
		ReservationUid: uuid.New().String(),
		BookUid:        bookUid,
		Username:       username,
		Status:         models.ReservationStatusPending,
		QueuePosition:  pending + 1,
		ReservedAt:     time.Now(),
	}
	if err := q.db.Create(&reservation).Error; err != nil {
		return models.Reservation{}, apperrors.Persistence("create reservation", err)
	}

	q.notifier.SendReservationCreated(username, bookUid, reservation.QueuePosition)
	return reservation, nil
}

func (q *ReservationQueue) CancelReservation(reservationUid, username string) error {
	reservation, err := q.findReservation(reservationUid, apperrors.CodeNotFound)
	if err != nil {
		return err
	}
	if reservation.Username != username {
		return apperrors.Violation(apperrors.CodeUnauthorizedCancel, "reservation %s does not belong to %s", reservationUid, username)
	}

	unlock := q.locks.lock(reservation.BookUid)
	defer unlock()

	reservation, err = q.findReservation(reservationUid, apperrors.CodeNotFound)
	if err != nil {
		return err
	}
	if reservation.Status != models.ReservationStatusPending && reservation.Status != models.ReservationStatusNotified {
		return apperrors.Violation(apperrors.CodeInvalidReservationStatus, "reservation %s is %s, cannot cancel", reservationUid, reservation.Status)
	}
	wasNotified := reservation.Status == models.ReservationStatusNotified

	err = q.db.Transaction(func(tx *gorm.DB) error {
		reservation.Status = models.ReservationStatusCancelled
		reservation.QueuePosition = 0
		if err := tx.Save(&reservation).Error; err != nil {
			return apperrors.Persistence("save cancelled reservation", err)
		}
		return q.recompact(tx, reservation.BookUid)
	})
	if err != nil {
		return err
	}

	// a cancelled hold passes straight to the next waiter; without this the
	// book would sit unborrowable with no return ever coming to free it
	if wasNotified {
		return q.processNextLocked(reservation.BookUid)
	}
	return nil
}

// ProcessNextAfterReturn promotes the head of the book's pending queue to
// NOTIFIED with a pickup deadline. A no-op when nobody is waiting.
func (q *ReservationQueue) ProcessNextAfterReturn(bookUid string) error {
	unlock := q.locks.lock(bookUid)
	defer unlock()
	return q.processNextLocked(bookUid)
}

// processNextLocked is the promote step for callers already holding the
// book's lock (ReturnBook, CancelReservation, ExpireNotifiedReservation).
func (q *ReservationQueue) processNextLocked(bookUid string) error {
	var head models.Reservation
	err := q.db.Where("book_uid = ? AND status = ?", bookUid, models.ReservationStatusPending).
		Order("queue_position asc").
		First(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Persistence("find queue head", err)
	}

	deadline := addBusinessDays(time.Now(), pickupBusinessDays)
	err = q.db.Transaction(func(tx *gorm.DB) error {
		head.Status = models.ReservationStatusNotified
		head.QueuePosition = 0
		head.PickupDeadline = &deadline
		if err := tx.Save(&head).Error; err != nil {
			return apperrors.Persistence("save notified reservation", err)
		}
		return q.recompact(tx, bookUid)
	})
	if err != nil {
		return err
	}

	q.notifier.SendReservationReady(head.Username, bookUid, deadline)
	return nil
}

// PickReservation hands the held book to the reservation's owner: the
// reservation is fulfilled and a loan is opened in the same transaction.
func (q *ReservationQueue) PickReservation(reservationUid, username string) (models.Loan, error) {
	active, err := q.membership.IsActive(username)
	if err != nil {
		return models.Loan{}, fmt.Errorf("membership check for %s: %w", username, err)
	}
	if !active {
		return models.Loan{}, apperrors.Violation(apperrors.CodeMembershipExpired, "membership of %s is not active", username)
	}

	reservation, err := q.findReservation(reservationUid, apperrors.CodeReservationNotFound)
	if err != nil {
		return models.Loan{}, err
	}
	if reservation.Username != username {
		return models.Loan{}, apperrors.Violation(apperrors.CodeUnauthorizedPickup, "reservation %s does not belong to %s", reservationUid, username)
	}

	unlock := q.locks.lock(reservation.BookUid)
	defer unlock()

	reservation, err = q.findReservation(reservationUid, apperrors.CodeReservationNotFound)
	if err != nil {
		return models.Loan{}, err
	}
	if reservation.Status != models.ReservationStatusPending && reservation.Status != models.ReservationStatusNotified {
		return models.Loan{}, apperrors.Violation(apperrors.CodeInvalidReservationStatus, "reservation %s is %s, cannot pick up", reservationUid, reservation.Status)
	}

	loans, err := loadBookLoans(q.db, reservation.BookUid)
	if err != nil {
		return models.Loan{}, err
	}
	reservations, err := loadBookReservations(q.db, reservation.BookUid)
	if err != nil {
		return models.Loan{}, err
	}
	if !IsAvailableForPickup(loans, reservations) {
		return models.Loan{}, apperrors.Violation(apperrors.CodeBookNotAvailable, "book %s is not held for pickup", reservation.BookUid)
	}

	loan := newLoan(reservation.BookUid, username, time.Now())
	err = q.db.Transaction(func(tx *gorm.DB) error {
		reservation.Status = models.ReservationStatusFulfilled
		reservation.QueuePosition = 0
		if err := tx.Save(&reservation).Error; err != nil {
			return apperrors.Persistence("save fulfilled reservation", err)
		}
		if err := tx.Create(&loan).Error; err != nil {
			return apperrors.Persistence("create pickup loan", err)
		}
		return q.recompact(tx, reservation.BookUid)
	})
	if err != nil {
		return models.Loan{}, err
	}
	return loan, nil
}

// ExpireNotifiedReservation cancels a NOTIFIED reservation whose pickup
// deadline lapsed and advances the queue to the next candidate. Expired
// reservations are skipped, not re-queued.
func (q *ReservationQueue) ExpireNotifiedReservation(reservationUid string) error {
	reservation, err := q.findReservation(reservationUid, apperrors.CodeReservationNotFound)
	if err != nil {
		return err
	}

	unlock := q.locks.lock(reservation.BookUid)
	defer unlock()

	reservation, err = q.findReservation(reservationUid, apperrors.CodeReservationNotFound)
	if err != nil {
		return err
	}
	if reservation.Status != models.ReservationStatusNotified {
		return apperrors.Violation(apperrors.CodeInvalidReservationStatus, "reservation %s is %s, not %s", reservationUid, reservation.Status, models.ReservationStatusNotified)
	}

	reservation.Status = models.ReservationStatusCancelled
	if err := q.db.Save(&reservation).Error; err != nil {
		return apperrors.Persistence("save expired reservation", err)
	}
	return q.processNextLocked(reservation.BookUid)
}

// ListLapsedPickups returns the uids of NOTIFIED reservations whose pickup
// deadline has passed; the scheduler expires each through
// ExpireNotifiedReservation.
func (q *ReservationQueue) ListLapsedPickups(now time.Time) ([]string, error) {
	var reservations []models.Reservation
	err := q.db.Where("status = ? AND pickup_deadline < ?", models.ReservationStatusNotified, now).
		Find(&reservations).Error
	if err != nil {
		return nil, apperrors.Persistence("list lapsed pickups", err)
	}
	uids := make([]string, len(reservations))
	for i, r := range reservations {
		uids[i] = r.ReservationUid
	}
	return uids, nil
}

// ListQueueForBook returns the book's pending queue in serving order.
func (q *ReservationQueue) ListQueueForBook(bookUid string) ([]models.Reservation, error) {
	if _, err := findBook(q.db, bookUid); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Violation(apperrors.CodeBookNotFound, "book %s not found", bookUid)
		}
		return nil, err
	}
	var reservations []models.Reservation
	err := q.db.Where("book_uid = ? AND status = ?", bookUid, models.ReservationStatusPending).
		Order("queue_position asc").
		Find(&reservations).Error
	if err != nil {
		return nil, apperrors.Persistence("list book queue", err)
	}
	return reservations, nil
}

func (q *ReservationQueue) ListReservationsForUser(username string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := q.db.Where("username = ?", username).
		Order("reserved_at desc").
		Find(&reservations).Error
	if err != nil {
		return nil, apperrors.Persistence("list user reservations", err)
	}
	return reservations, nil
}

// recompact reassigns dense positions 1..N to the book's remaining PENDING
// reservations ordered by reservedAt. Runs inside the caller's transaction.
func (q *ReservationQueue) recompact(tx *gorm.DB, bookUid string) error {
	var pending []models.Reservation
	err := tx.Where("book_uid = ? AND status = ?", bookUid, models.ReservationStatusPending).
		Order("reserved_at asc").
		Find(&pending).Error
	if err != nil {
		return apperrors.Persistence("load pending queue", err)
	}
	for i := range pending {
		want := i + 1
		if pending[i].QueuePosition != want {
			pending[i].QueuePosition = want
			if err := tx.Save(&pending[i]).Error; err != nil {
				return apperrors.Persistence("recompact queue position", err)
			}
		}
	}
	return nil
}

func (q *ReservationQueue) findReservation(reservationUid, missingCode string) (models.Reservation, error) {
	var reservation models.Reservation
	err := q.db.Where("reservation_uid = ?", reservationUid).First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reservation, apperrors.Violation(missingCode, "reservation %s not found", reservationUid)
	}
	if err != nil {
		return reservation, apperrors.Persistence("find reservation", err)
	}
	return reservation, nil
}
