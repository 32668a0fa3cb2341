package notifications

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type captureSender struct {
	sent []Notification
	fail bool
}

func (s *captureSender) Send(n Notification) error {
	if s.fail {
		return errors.New("transport down")
	}
	s.sent = append(s.sent, n)
	return nil
}

func TestOutboxFIFO(t *testing.T) {
	outbox := NewOutbox()
	outbox.Enqueue(&Notification{ID: "a"})
	outbox.Enqueue(&Notification{ID: "b"})

	assert.Equal(t, 2, outbox.Size())
	assert.Equal(t, "a", outbox.Dequeue().ID)
	assert.Equal(t, "b", outbox.Dequeue().ID)
	assert.Nil(t, outbox.Dequeue())
}

func TestOutboxHoldsBackFutureRetries(t *testing.T) {
	outbox := NewOutbox()
	outbox.Enqueue(&Notification{ID: "later", RetryAt: time.Now().Add(time.Hour)})
	outbox.Enqueue(&Notification{ID: "now"})

	assert.Equal(t, "now", outbox.Dequeue().ID)
	assert.Nil(t, outbox.Dequeue())
	assert.Equal(t, 1, outbox.Size())
}

func TestDispatcherDelivers(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender)

	d.SendReservationCreated("bob", "book-1", 2)
	d.SendReservationReady("bob", "book-1", time.Now())
	d.SendPaymentReminder("alice", "fine-1", 5.0)
	assert.Equal(t, 3, d.Pending())

	d.Flush()
	assert.Equal(t, 0, d.Pending())
	assert.Len(t, sender.sent, 3)
	assert.Equal(t, KindReservationCreated, sender.sent[0].Kind)
	assert.Equal(t, 2, sender.sent[0].Position)
}

func TestDispatcherRetriesWithBackoff(t *testing.T) {
	sender := &captureSender{fail: true}
	d := NewDispatcher(sender)

	d.SendReturnReminder("bob", "book-1", time.Now())
	d.Flush()

	// delivery failed, the notification waits for its backoff
	assert.Equal(t, 1, d.Pending())
	d.Flush()
	assert.Equal(t, 1, d.Pending())

	// once the transport recovers and the backoff lapses it goes out
	sender.fail = false
	d.outbox.mu.Lock()
	d.outbox.items[0].RetryAt = time.Time{}
	d.outbox.mu.Unlock()
	d.Flush()
	assert.Equal(t, 0, d.Pending())
	assert.Len(t, sender.sent, 1)
}

func TestDispatcherDropsAfterMaxRetries(t *testing.T) {
	sender := &captureSender{fail: true}
	d := NewDispatcher(sender)
	d.backoff = 0
	d.maxRetries = 2

	d.SendReturnReminder("bob", "book-1", time.Now())
	for i := 0; i < 5; i++ {
		d.Flush()
	}
	assert.Equal(t, 0, d.Pending())
	assert.Empty(t, sender.sent)
}

func TestLogSenderHandlesAllKinds(t *testing.T) {
	sender := LogSender{}
	kinds := []string{KindReservationCreated, KindReservationReady, KindReturnReminder, KindPaymentReminder, "UNKNOWN"}
	for _, kind := range kinds {
		assert.NoError(t, sender.Send(Notification{Kind: kind, Username: "bob"}))
	}
}
