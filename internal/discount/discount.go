package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lojf/storebot/internal/ledger"
	"github.com/lojf/storebot/internal/metrics"
	"github.com/lojf/storebot/internal/models"
)

// Policy decides whether a code survives its first redemption.
type Policy string

const (
	// PolicySingleUse: the first successful redemption consumes the code for everyone.
	PolicySingleUse Policy = "single"
	// PolicyCounted: the code stays valid and only its usage counter grows.
	PolicyCounted Policy = "counted"
)

var (
	ErrCodeNotFound    = errors.New("discount: code not found")
	ErrCodeAlreadyUsed = errors.New("discount: code already used")
	ErrCodeExists      = errors.New("discount: code already exists")
	ErrInvalidCode     = errors.New("discount: invalid code or value")
)

type Service struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	policy  Policy
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(db *gorm.DB, l *ledger.Ledger, policy Policy, log *zap.Logger, m *metrics.Metrics) *Service {
	if policy != PolicyCounted {
		policy = PolicySingleUse
	}
	return &Service{db: db, ledger: l, policy: policy, log: log.Named("discount"), metrics: m}
}

func (s *Service) Policy() Policy { return s.policy }

// Redeem grants the code's value to userID. Counter bump, redemption row and
// the ledger credit commit together or not at all.
func (s *Service) Redeem(ctx context.Context, code string, userID int64) (int64, error) {
	code = Normalize(code)
	if code == "" {
		s.metrics.Redemption(metrics.OutcomeInvalid)
		return 0, ErrCodeNotFound
	}

	var granted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dc models.DiscountCode
		err := tx.Where("code = ?", code).First(&dc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodeNotFound
		}
		if err != nil {
			return err
		}

		q := tx.Model(&models.DiscountCode{}).Where("code = ?", code)
		if s.policy == PolicySingleUse {
			q = q.Where("usage_count = 0")
		}
		res := q.Update("usage_count", gorm.Expr("usage_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCodeAlreadyUsed
		}

		if err := tx.Create(&models.DiscountRedemption{Code: code, UserID: userID, Value: dc.Value}).Error; err != nil {
			return err
		}
		if _, err := s.ledger.IncreaseTx(tx, userID, dc.Value, models.EntryDiscount, "code:"+code); err != nil {
			return err
		}
		granted = dc.Value
		return nil
	})

	switch {
	case err == nil:
		s.metrics.Redemption(metrics.OutcomeOK)
		s.log.Info("discount redeemed", zap.String("code", code), zap.Int64("user_id", userID), zap.Int64("value", granted))
		return granted, nil
	case errors.Is(err, ErrCodeNotFound), errors.Is(err, ledger.ErrUserNotFound):
		s.metrics.Redemption(metrics.OutcomeNotFound)
		return 0, err
	case errors.Is(err, ErrCodeAlreadyUsed):
		s.metrics.Redemption(metrics.OutcomeAlreadyUsed)
		return 0, err
	}
	s.metrics.Redemption(metrics.OutcomeError)
	return 0, fmt.Errorf("%w: %w", ledger.ErrStorage, err)
}

// Create adds a new code. Codes are case-insensitive and must not contain spaces.
func (s *Service) Create(ctx context.Context, code string, value int64) (models.DiscountCode, error) {
	code = Normalize(code)
	if code == "" || strings.ContainsAny(code, " \t\n") || value <= 0 {
		return models.DiscountCode{}, ErrInvalidCode
	}
	dc := models.DiscountCode{Code: code, Value: value}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.DiscountCode{}).Where("code = ?", code).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrCodeExists
		}
		return tx.Create(&dc).Error
	})
	if err != nil {
		return models.DiscountCode{}, err
	}
	return dc, nil
}

func (s *Service) Delete(ctx context.Context, code string) error {
	res := s.db.WithContext(ctx).Where("code = ?", Normalize(code)).Delete(&models.DiscountCode{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCodeNotFound
	}
	return nil
}

func (s *Service) Get(ctx context.Context, code string) (models.DiscountCode, error) {
	var dc models.DiscountCode
	err := s.db.WithContext(ctx).Where("code = ?", Normalize(code)).First(&dc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dc, ErrCodeNotFound
	}
	return dc, err
}

func (s *Service) List(ctx context.Context) ([]models.DiscountCode, error) {
	var out []models.DiscountCode
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// Redemptions returns who used a code, newest first.
func (s *Service) Redemptions(ctx context.Context, code string) ([]models.DiscountRedemption, error) {
	var out []models.DiscountRedemption
	err := s.db.WithContext(ctx).Where("code = ?", Normalize(code)).Order("id DESC").Find(&out).Error
	return out, err
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
