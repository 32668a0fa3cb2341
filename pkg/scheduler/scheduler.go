package scheduler

import (
	"log"
	"time"

	"library-circulation/pkg/circulation"
)

// Scheduler drives the time-based transitions the engine never triggers on
// its own: marking active loans overdue, expiring lapsed pickup offers, and
// reminding about unpaid fines. Each sweep invokes the same core operations
// the API exposes, there is no duplicate code path.
type Scheduler struct {
	engine      *circulation.Engine
	interval    time.Duration
	reminderLag time.Duration
	stop        chan struct{}
	done        chan struct{}
}

func New(engine *circulation.Engine, interval, reminderLag time.Duration) *Scheduler {
	return &Scheduler{
		engine:      engine,
		interval:    interval,
		reminderLag: reminderLag,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.RunOnce()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// RunOnce executes a single sweep. Failures on individual records are
// logged and skipped so one bad row never stalls the rest of the sweep.
func (s *Scheduler) RunOnce() {
	now := time.Now()

	overdue, err := s.engine.Loans.GetOverdueLoans()
	if err != nil {
		log.Printf("overdue sweep failed: %v", err)
	} else {
		for _, loan := range overdue {
			if err := s.engine.Loans.MarkOverdue(loan.LoanUid); err != nil {
				log.Printf("failed to mark loan %s overdue: %v", loan.LoanUid, err)
			}
		}
	}

	lapsed, err := s.engine.Reservations.ListLapsedPickups(now)
	if err != nil {
		log.Printf("pickup expiry sweep failed: %v", err)
	} else {
		for _, uid := range lapsed {
			if err := s.engine.Reservations.ExpireNotifiedReservation(uid); err != nil {
				log.Printf("failed to expire reservation %s: %v", uid, err)
			}
		}
	}

	if _, err := s.engine.Fees.RemindUnpaid(now.Add(-s.reminderLag)); err != nil {
		log.Printf("payment reminder sweep failed: %v", err)
	}
}
