package models

import "time"

type DiscountCode struct {
	Code       string `gorm:"primaryKey"`
	Value      int64  `gorm:"not null"`
	UsageCount int64  `gorm:"not null;default:0"`
	CreatedAt  time.Time
}

// DiscountRedemption records who redeemed a code and for how much.
type DiscountRedemption struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"not null;index"`
	UserID    int64  `gorm:"not null;index"`
	Value     int64  `gorm:"not null"`
	CreatedAt time.Time
}

// Service is a deliverable catalog entry: inline text (e.g. a connection
// string) or a reference to an uploaded file.
type Service struct {
	Type      string `gorm:"primaryKey"`
	Content   string `gorm:"not null"`
	IsFile    bool   `gorm:"not null;default:false"`
	FileName  string
	UpdatedAt time.Time
}

// ServicePrice is a live price override keyed by service type or account type.
type ServicePrice struct {
	Key       string `gorm:"primaryKey"`
	Price     int64  `gorm:"not null"`
	UpdatedAt time.Time
}

// Purchase request statuses. Only pending -> approved and pending -> rejected exist.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

type PurchaseRequest struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      int64  `gorm:"not null;index"`
	AccountType string `gorm:"not null"`
	Service     string `gorm:"not null"`
	Device      string
	Status      string `gorm:"not null;default:pending;index"`
	Price       int64  `gorm:"not null;default:0"` // amount charged at approval
	Charged     bool   `gorm:"not null;default:false"`
	ResolvedAt  *time.Time
	CreatedAt   time.Time
}

// CreditTransfer is the write-once audit record of a user to user transfer.
type CreditTransfer struct {
	ID         uint  `gorm:"primaryKey"`
	SenderID   int64 `gorm:"not null;index"`
	ReceiverID int64 `gorm:"not null;index"`
	Amount     int64 `gorm:"not null"`
	CreatedAt  time.Time
}

// Ledger entry kinds.
const (
	EntryAdjustment = "adjustment"
	EntryDiscount   = "discount"
	EntryPurchase   = "purchase"
)

// LedgerEntry records every balance change that is not a transfer.
type LedgerEntry struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       int64  `gorm:"not null;index"`
	Change       int64  `gorm:"not null"`
	BalanceAfter int64  `gorm:"not null"`
	Kind         string `gorm:"not null;index"`
	Reference    string `gorm:"index"`
	CreatedAt    time.Time
}
