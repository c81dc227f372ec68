package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lojf/storebot/internal/catalog"
	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/ledger"
	"github.com/lojf/storebot/internal/metrics"
	"github.com/lojf/storebot/internal/models"
)

var (
	ErrRequestNotFound  = errors.New("purchase: request not found")
	ErrRequestResolved  = errors.New("purchase: request already resolved")
	ErrInvalidSelection = errors.New("purchase: unknown account type, device or service")
	ErrContentMissing   = catalog.ErrContentMissing
)

type Pipeline struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(db *gorm.DB, l *ledger.Ledger, c *catalog.Catalog, log *zap.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{db: db, ledger: l, catalog: c, log: log.Named("purchase"), metrics: m}
}

// Create persists a pending request. Device may be empty.
func (p *Pipeline) Create(ctx context.Context, userID int64, accountType, device, service string) (models.PurchaseRequest, error) {
	if _, ok := config.Find(p.catalog.AccountTypes(), accountType); !ok {
		return models.PurchaseRequest{}, ErrInvalidSelection
	}
	if _, ok := config.Find(p.catalog.ServiceTypes(), service); !ok {
		return models.PurchaseRequest{}, ErrInvalidSelection
	}
	if device != "" {
		if _, ok := config.Find(p.catalog.DeviceTypes(), device); !ok {
			return models.PurchaseRequest{}, ErrInvalidSelection
		}
	}
	req := models.PurchaseRequest{
		UserID:      userID,
		AccountType: accountType,
		Device:      device,
		Service:     service,
		Status:      models.RequestPending,
	}
	if err := p.db.WithContext(ctx).Create(&req).Error; err != nil {
		return models.PurchaseRequest{}, err
	}
	p.metrics.Request(models.RequestPending)
	return req, nil
}

func (p *Pipeline) Get(ctx context.Context, id uint) (models.PurchaseRequest, error) {
	var req models.PurchaseRequest
	err := p.db.WithContext(ctx).First(&req, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return req, ErrRequestNotFound
	}
	return req, err
}

// ListByStatus returns requests in the given status, oldest first.
func (p *Pipeline) ListByStatus(ctx context.Context, status string, limit int) ([]models.PurchaseRequest, error) {
	var out []models.PurchaseRequest
	err := p.db.WithContext(ctx).Where("status = ?", status).
		Order("created_at ASC").Order("id ASC").Limit(limit).Find(&out).Error
	return out, err
}

// ListByUser returns the user's requests, newest first.
func (p *Pipeline) ListByUser(ctx context.Context, userID int64, limit int) ([]models.PurchaseRequest, error) {
	var out []models.PurchaseRequest
	err := p.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Quote is what the operator sees before resolving a request.
type Quote struct {
	Request  models.PurchaseRequest
	User     models.User
	Price    int64
	PriceSet bool
	Covered  bool // balance covers the current price
}

func (p *Pipeline) Quote(ctx context.Context, id uint) (Quote, error) {
	var q Quote
	req, err := p.Get(ctx, id)
	if err != nil {
		return q, err
	}
	q.Request = req
	if err := p.db.WithContext(ctx).First(&q.User, req.UserID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return q, err
	}
	price, err := p.catalog.Price(ctx, req.Service, req.AccountType)
	switch {
	case err == nil:
		q.Price, q.PriceSet = price, true
		q.Covered = q.User.Credit >= price
	case !errors.Is(err, catalog.ErrPriceUnset):
		return q, err
	}
	return q, nil
}

// Resolution is the committed outcome of Approve.
type Resolution struct {
	Request      models.PurchaseRequest
	Content      models.Service
	Charged      int64
	BalanceAfter int64
}

// Approve resolves a pending request exactly once. With deduct the current
// catalog price is debited in the same transaction as the status change; an
// uncovered price rolls everything back with ledger.ErrInsufficientCredit.
// The content is returned for delivery after commit.
func (p *Pipeline) Approve(ctx context.Context, id uint, deduct bool) (Resolution, error) {
	var res Resolution
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockPending(tx, id)
		if err != nil {
			return err
		}
		content, err := p.catalog.ContentTx(tx, req.Service)
		if err != nil {
			return err
		}

		var charged int64
		if deduct {
			if charged, err = p.catalog.PriceTx(tx, req.Service, req.AccountType); err != nil {
				return err
			}
		}

		now := time.Now()
		if err := resolve(tx, id, map[string]any{
			"status":      models.RequestApproved,
			"price":       charged,
			"charged":     deduct && charged > 0,
			"resolved_at": now,
		}); err != nil {
			return err
		}

		if deduct && charged > 0 {
			after, err := p.ledger.DecreaseTx(tx, req.UserID, charged, models.EntryPurchase, fmt.Sprintf("request:%d", id))
			if err != nil {
				return err
			}
			res.BalanceAfter = after
		} else {
			var u models.User
			if err := tx.Select("id", "credit").First(&u, req.UserID).Error; err == nil {
				res.BalanceAfter = u.Credit
			}
		}

		req.Status = models.RequestApproved
		req.Price = charged
		req.Charged = deduct && charged > 0
		req.ResolvedAt = &now
		res.Request, res.Content, res.Charged = req, content, charged
		return nil
	})
	if err != nil {
		return Resolution{}, err
	}
	p.metrics.Request(models.RequestApproved)
	p.log.Info("request approved",
		zap.Uint("request_id", id),
		zap.Int64("user_id", res.Request.UserID),
		zap.Int64("charged", res.Charged))
	return res, nil
}

// Reject resolves a pending request with no ledger effect.
func (p *Pipeline) Reject(ctx context.Context, id uint) (models.PurchaseRequest, error) {
	var out models.PurchaseRequest
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockPending(tx, id)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := resolve(tx, id, map[string]any{
			"status":      models.RequestRejected,
			"resolved_at": now,
		}); err != nil {
			return err
		}
		req.Status = models.RequestRejected
		req.ResolvedAt = &now
		out = req
		return nil
	})
	if err != nil {
		return models.PurchaseRequest{}, err
	}
	p.metrics.Request(models.RequestRejected)
	p.log.Info("request rejected", zap.Uint("request_id", id), zap.Int64("user_id", out.UserID))
	return out, nil
}

func lockPending(tx *gorm.DB, id uint) (models.PurchaseRequest, error) {
	var req models.PurchaseRequest
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return req, ErrRequestNotFound
	}
	if err != nil {
		return req, err
	}
	if req.Status != models.RequestPending {
		return req, ErrRequestResolved
	}
	return req, nil
}

// resolve flips a request out of pending; zero rows means someone else won.
func resolve(tx *gorm.DB, id uint, fields map[string]any) error {
	res := tx.Model(&models.PurchaseRequest{}).
		Where("id = ? AND status = ?", id, models.RequestPending).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRequestResolved
	}
	return nil
}
