package models

import (
	"time"
)

const (
	LoanStatusActive   = "ACTIVE"
	LoanStatusReturned = "RETURNED"
	LoanStatusOverdue  = "OVERDUE"
	LoanStatusRenewed  = "RENEWED"
	LoanStatusLost     = "LOST"
	LoanStatusPending  = "PENDING"
)

const (
	ReservationStatusPending   = "PENDING"
	ReservationStatusNotified  = "NOTIFIED"
	ReservationStatusFulfilled = "FULFILLED"
	ReservationStatusCancelled = "CANCELLED"
)

const (
	FineStatusPending   = "PENDING"
	FineStatusNotified  = "NOTIFIED"
	FineStatusPaid      = "PAID"
	FineStatusWaived    = "WAIVED"
	FineStatusCancelled = "CANCELLED"
)

const (
	FineTypeLateReturn = "LATE_RETURN"
	FineTypeLostItem   = "LOST_ITEM"
)

type Book struct {
	ID        uint   `gorm:"primaryKey"`
	BookUid   string `gorm:"type:uuid;uniqueIndex;not null"`
	Name      string `gorm:"not null"`
	Author    string
	Genre     string
	Condition string `gorm:"size:20;default:'EXCELLENT'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Loan struct {
	ID         uint   `gorm:"primaryKey"`
	LoanUid    string `gorm:"type:uuid;uniqueIndex;not null"`
	BookUid    string `gorm:"type:uuid;index;not null"`
	Username   string `gorm:"size:80;not null"`
	Status     string `gorm:"size:20;not null"`
	LoanDate   time.Time
	DueDate    time.Time `gorm:"index"`
	ReturnDate *time.Time
	LateFee    *float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Reservation struct {
	ID             uint   `gorm:"primaryKey"`
	ReservationUid string `gorm:"type:uuid;uniqueIndex;not null"`
	BookUid        string `gorm:"type:uuid;index;not null"`
	Username       string `gorm:"size:80;not null"`
	Status         string `gorm:"size:20;not null"`
	QueuePosition  int    `gorm:"not null;default:0"` // 0 = not ranked in the pending queue
	ReservedAt     time.Time
	PickupDeadline *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Fine struct {
	ID          uint    `gorm:"primaryKey"`
	FineUid     string  `gorm:"type:uuid;uniqueIndex;not null"`
	LoanUid     string  `gorm:"type:uuid;index;not null"`
	Username    string  `gorm:"size:80;not null"`
	Amount      float64 `gorm:"not null"`
	FineType    string  `gorm:"size:20;not null"`
	Status      string  `gorm:"size:20;not null"`
	Description string
	IssuedDate  time.Time `gorm:"index"`
	PaidDate    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
