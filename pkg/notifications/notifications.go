package notifications

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	KindReservationCreated = "RESERVATION_CREATED"
	KindReservationReady   = "RESERVATION_READY"
	KindReturnReminder     = "RETURN_REMINDER"
	KindPaymentReminder    = "PAYMENT_REMINDER"
)

type Notification struct {
	ID         string
	Kind       string
	Username   string
	BookUid    string
	FineUid    string
	Position   int
	Amount     float64
	Deadline   time.Time
	DueDate    time.Time
	RetryAt    time.Time
	RetryCount int
	MaxRetries int
}

// Sender delivers a single notification. A non-nil error puts the
// notification back on the outbox for retry.
type Sender interface {
	Send(n Notification) error
}

// LogSender writes notifications to the service log. Stands in for a real
// mail/push transport, which is outside the circulation core.
type LogSender struct{}

func (LogSender) Send(n Notification) error {
	switch n.Kind {
	case KindReservationCreated:
		log.Printf("notify %s: reservation for book %s created, position %d", n.Username, n.BookUid, n.Position)
	case KindReservationReady:
		log.Printf("notify %s: book %s is ready for pickup until %s", n.Username, n.BookUid, n.Deadline.Format("2006-01-02"))
	case KindReturnReminder:
		log.Printf("notify %s: book %s was due %s, please return it", n.Username, n.BookUid, n.DueDate.Format("2006-01-02"))
	case KindPaymentReminder:
		log.Printf("notify %s: fine %s of %.2f is unpaid", n.Username, n.FineUid, n.Amount)
	default:
		log.Printf("notify %s: %s", n.Username, n.Kind)
	}
	return nil
}

// Outbox is an in-memory retry queue for notifications. Entries become
// eligible once their RetryAt has passed.
type Outbox struct {
	mu    sync.Mutex
	items []*Notification
}

func NewOutbox() *Outbox {
	return &Outbox{
		items: make([]*Notification, 0),
	}
}

func (o *Outbox) Enqueue(n *Notification) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, n)
}

// Dequeue removes and returns the first eligible notification, or nil when
// nothing is ready yet.
func (o *Outbox) Dequeue() *Notification {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	for i, n := range o.items {
		if !n.RetryAt.After(now) {
			o.items = append(o.items[:i], o.items[i+1:]...)
			return n
		}
	}
	return nil
}

func (o *Outbox) Size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

func newID() string {
	return uuid.New().String()
}
