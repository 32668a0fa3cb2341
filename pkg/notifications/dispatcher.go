package notifications

import (
	"log"
	"time"
)

// Dispatcher implements the circulation engine's notification contract on
// top of the outbox: Send* calls only enqueue, delivery happens on the
// worker goroutine. Failures never reach the caller.
type Dispatcher struct {
	outbox     *Outbox
	sender     Sender
	backoff    time.Duration
	maxRetries int
	stop       chan struct{}
	done       chan struct{}
}

func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{
		outbox:     NewOutbox(),
		sender:     sender,
		backoff:    30 * time.Second,
		maxRetries: 5,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (d *Dispatcher) SendReservationCreated(username, bookUid string, position int) {
	d.enqueue(&Notification{
		Kind:     KindReservationCreated,
		Username: username,
		BookUid:  bookUid,
		Position: position,
	})
}

func (d *Dispatcher) SendReservationReady(username, bookUid string, deadline time.Time) {
	d.enqueue(&Notification{
		Kind:     KindReservationReady,
		Username: username,
		BookUid:  bookUid,
		Deadline: deadline,
	})
}

func (d *Dispatcher) SendReturnReminder(username, bookUid string, dueDate time.Time) {
	d.enqueue(&Notification{
		Kind:     KindReturnReminder,
		Username: username,
		BookUid:  bookUid,
		DueDate:  dueDate,
	})
}

func (d *Dispatcher) SendPaymentReminder(username, fineUid string, amount float64) {
	d.enqueue(&Notification{
		Kind:     KindPaymentReminder,
		Username: username,
		FineUid:  fineUid,
		Amount:   amount,
	})
}

func (d *Dispatcher) enqueue(n *Notification) {
	n.ID = newID()
	n.MaxRetries = d.maxRetries
	d.outbox.Enqueue(n)
}

// Start drains the outbox on the given interval until Stop is called.
func (d *Dispatcher) Start(interval time.Duration) {
	go func() {
		defer close(d.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				d.Flush()
				return
			case <-ticker.C:
				d.Flush()
			}
		}
	}()
}

func (d *Dispatcher) Stop() {
	close(d.stop)
	<-d.done
}

// Flush delivers every currently eligible notification once. Failed
// deliveries go back on the outbox with backoff until retries run out.
func (d *Dispatcher) Flush() {
	for {
		n := d.outbox.Dequeue()
		if n == nil {
			return
		}
		if err := d.sender.Send(*n); err != nil {
			n.RetryCount++
			if n.RetryCount > n.MaxRetries {
				log.Printf("dropping notification %s (%s) after %d attempts: %v", n.ID, n.Kind, n.RetryCount, err)
				continue
			}
			n.RetryAt = time.Now().Add(d.backoff)
			d.outbox.Enqueue(n)
		}
	}
}

// Pending reports how many notifications are still queued.
func (d *Dispatcher) Pending() int {
	return d.outbox.Size()
}
