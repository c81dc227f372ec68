// Package ledger owns every mutation of a user's credit balance.
//
// Debits are a single conditional UPDATE guarded by credit >= amount, so two
// concurrent debits on the same row can never both pass the balance check.
// Transfers additionally lock both user rows in id order (SELECT ... FOR UPDATE
// where the dialect supports it) and commit debit, credit and the audit record
// together.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lojf/storebot/internal/metrics"
	"github.com/lojf/storebot/internal/models"
)

var (
	ErrInvalidAmount      = errors.New("ledger: amount must be a positive integer")
	ErrUserNotFound       = errors.New("ledger: user not found")
	ErrInsufficientCredit = errors.New("ledger: insufficient credit")
	ErrSelfTransfer       = errors.New("ledger: cannot transfer to self")
	// ErrStorage wraps every failure that is not a business rule.
	ErrStorage = errors.New("ledger: storage failure")
)

type Ledger struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(db *gorm.DB, log *zap.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{db: db, log: log.Named("ledger"), metrics: m}
}

// Increase credits amount to the user and records a ledger entry.
func (l *Ledger) Increase(ctx context.Context, userID, amount int64, kind, ref string) (int64, error) {
	var after int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		after, err = l.IncreaseTx(tx, userID, amount, kind, ref)
		return err
	})
	err = classify(err)
	l.observe("increase", err)
	return after, err
}

// Decrease debits amount if the balance covers it; otherwise the balance is untouched.
func (l *Ledger) Decrease(ctx context.Context, userID, amount int64, kind, ref string) (int64, error) {
	var after int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		after, err = l.DecreaseTx(tx, userID, amount, kind, ref)
		return err
	})
	err = classify(err)
	l.observe("decrease", err)
	return after, err
}

// Adjust applies an admin's signed correction. A zero delta is invalid.
func (l *Ledger) Adjust(ctx context.Context, userID, delta int64, ref string) (int64, error) {
	if ref == "" {
		ref = "adj-" + uuid.NewString()
	}
	switch {
	case delta > 0:
		return l.Increase(ctx, userID, delta, models.EntryAdjustment, ref)
	case delta < 0:
		return l.Decrease(ctx, userID, -delta, models.EntryAdjustment, ref)
	}
	l.observe("adjust", ErrInvalidAmount)
	return 0, ErrInvalidAmount
}

// IncreaseTx is Increase inside a caller-owned transaction.
func (l *Ledger) IncreaseTx(tx *gorm.DB, userID, amount int64, kind, ref string) (int64, error) {
	after, err := credit(tx, userID, amount)
	if err != nil {
		return 0, err
	}
	return after, recordEntry(tx, userID, amount, after, kind, ref)
}

// DecreaseTx is Decrease inside a caller-owned transaction.
func (l *Ledger) DecreaseTx(tx *gorm.DB, userID, amount int64, kind, ref string) (int64, error) {
	after, err := debit(tx, userID, amount)
	if err != nil {
		return 0, err
	}
	return after, recordEntry(tx, userID, -amount, after, kind, ref)
}

// Transfer moves amount from sender to receiver as one unit and appends one
// CreditTransfer. Validation happens before any row is touched.
func (l *Ledger) Transfer(ctx context.Context, senderID, receiverID, amount int64) (models.CreditTransfer, error) {
	var rec models.CreditTransfer
	if amount <= 0 {
		l.observe("transfer", ErrInvalidAmount)
		return rec, ErrInvalidAmount
	}
	if senderID == receiverID {
		l.observe("transfer", ErrSelfTransfer)
		return rec, ErrSelfTransfer
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUsers(tx, senderID, receiverID); err != nil {
			return err
		}
		if _, err := debit(tx, senderID, amount); err != nil {
			return err
		}
		if _, err := credit(tx, receiverID, amount); err != nil {
			return err
		}
		rec = models.CreditTransfer{SenderID: senderID, ReceiverID: receiverID, Amount: amount}
		return tx.Create(&rec).Error
	})
	err = classify(err)
	l.observe("transfer", err)
	if err != nil {
		return models.CreditTransfer{}, err
	}
	l.log.Info("credit transferred",
		zap.Int64("sender_id", senderID),
		zap.Int64("receiver_id", receiverID),
		zap.Int64("amount", amount),
		zap.Uint("transfer_id", rec.ID))
	return rec, nil
}

func (l *Ledger) Balance(ctx context.Context, userID int64) (int64, error) {
	var u models.User
	err := l.db.WithContext(ctx).Select("id", "credit").First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return u.Credit, nil
}

// Transfers lists the most recent transfers the user sent or received.
func (l *Ledger) Transfers(ctx context.Context, userID int64, limit int) ([]models.CreditTransfer, error) {
	var out []models.CreditTransfer
	err := l.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("id DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return out, nil
}

func (l *Ledger) Entries(ctx context.Context, userID int64, limit int) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("id DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return out, nil
}

// lockUsers takes row locks on every user in ascending id order, so two
// transfers between the same pair always queue on the same row first.
func lockUsers(tx *gorm.DB, ids ...int64) error {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	for _, id := range slices.Compact(sorted) {
		var u models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "credit").Where("id = ?", id).First(&u).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func credit(tx *gorm.DB, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	res := tx.Model(&models.User{}).Where("id = ?", userID).
		Update("credit", gorm.Expr("credit + ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrUserNotFound
	}
	return balanceTx(tx, userID)
}

func debit(tx *gorm.DB, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	res := tx.Model(&models.User{}).Where("id = ? AND credit >= ?", userID, amount).
		Update("credit", gorm.Expr("credit - ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, ErrUserNotFound
		}
		return 0, ErrInsufficientCredit
	}
	return balanceTx(tx, userID)
}

func balanceTx(tx *gorm.DB, userID int64) (int64, error) {
	var u models.User
	if err := tx.Select("id", "credit").First(&u, userID).Error; err != nil {
		return 0, err
	}
	return u.Credit, nil
}

func recordEntry(tx *gorm.DB, userID, change, after int64, kind, ref string) error {
	e := models.LedgerEntry{
		UserID:       userID,
		Change:       change,
		BalanceAfter: after,
		Kind:         kind,
		Reference:    ref,
	}
	return tx.Create(&e).Error
}

func classify(err error) error {
	switch {
	case err == nil,
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrInsufficientCredit),
		errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrStorage):
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

func (l *Ledger) observe(op string, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrInsufficientCredit):
		outcome = metrics.OutcomeInsufficient
	case errors.Is(err, ErrUserNotFound):
		outcome = metrics.OutcomeNotFound
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSelfTransfer):
		outcome = metrics.OutcomeInvalid
	default:
		outcome = metrics.OutcomeError
		l.log.Error("ledger operation failed", zap.String("op", op), zap.Error(err))
	}
	l.metrics.LedgerOp(op, outcome)
}
