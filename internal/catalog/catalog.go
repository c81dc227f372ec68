package catalog

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/models"
)

var (
	ErrUnknownKey     = errors.New("catalog: unknown service or account type")
	ErrContentMissing = errors.New("catalog: no content for service")
	ErrEmptyContent   = errors.New("catalog: content is empty")
	ErrInvalidPrice   = errors.New("catalog: price must not be negative")
	ErrPriceUnset     = errors.New("catalog: no price configured")
)

// Catalog serves deliverable content and prices. The option lists come from
// configuration and are read-only; content and live prices live in the database.
type Catalog struct {
	db    *gorm.DB
	items config.Catalog
}

func New(db *gorm.DB, items config.Catalog) *Catalog {
	return &Catalog{db: db, items: items}
}

func (c *Catalog) AccountTypes() []config.Option { return c.items.AccountTypes }
func (c *Catalog) ServiceTypes() []config.Option { return c.items.ServiceTypes }
func (c *Catalog) DeviceTypes() []config.Option  { return c.items.DeviceTypes }

// SetContent creates or replaces the deliverable for a service type.
func (c *Catalog) SetContent(ctx context.Context, serviceType, content string, isFile bool, fileName string) error {
	if _, ok := config.Find(c.items.ServiceTypes, serviceType); !ok {
		return ErrUnknownKey
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	svc := models.Service{Type: serviceType, Content: content, IsFile: isFile, FileName: fileName}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "is_file", "file_name", "updated_at"}),
	}).Create(&svc).Error
}

func (c *Catalog) Content(ctx context.Context, serviceType string) (models.Service, error) {
	return c.ContentTx(c.db.WithContext(ctx), serviceType)
}

// ContentTx reads the deliverable inside a caller-owned transaction.
func (c *Catalog) ContentTx(tx *gorm.DB, serviceType string) (models.Service, error) {
	var svc models.Service
	err := tx.Where("type = ?", serviceType).First(&svc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return svc, ErrContentMissing
	}
	return svc, err
}

func (c *Catalog) DeleteContent(ctx context.Context, serviceType string) error {
	res := c.db.WithContext(ctx).Where("type = ?", serviceType).Delete(&models.Service{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrContentMissing
	}
	return nil
}

func (c *Catalog) ListContent(ctx context.Context) ([]models.Service, error) {
	var out []models.Service
	err := c.db.WithContext(ctx).Order("type").Find(&out).Error
	return out, err
}

// SetPrice stores a live price for a service type or an account type.
func (c *Catalog) SetPrice(ctx context.Context, key string, price int64) error {
	if !c.priceable(key) {
		return ErrUnknownKey
	}
	if price < 0 {
		return ErrInvalidPrice
	}
	p := models.ServicePrice{Key: key, Price: price}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "updated_at"}),
	}).Create(&p).Error
}

// Price resolves what a purchase costs right now: the live service price, then
// the live account-type price, then the account type's bootstrap price.
func (c *Catalog) Price(ctx context.Context, serviceType, accountType string) (int64, error) {
	return c.PriceTx(c.db.WithContext(ctx), serviceType, accountType)
}

func (c *Catalog) PriceTx(tx *gorm.DB, serviceType, accountType string) (int64, error) {
	for _, key := range []string{serviceType, accountType} {
		if key == "" {
			continue
		}
		var p models.ServicePrice
		err := tx.Where(&models.ServicePrice{Key: key}).First(&p).Error
		if err == nil {
			return p.Price, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}
	if o, ok := config.Find(c.items.AccountTypes, accountType); ok && o.Price > 0 {
		return o.Price, nil
	}
	return 0, ErrPriceUnset
}

type PriceLine struct {
	Key   string
	Label string
	Price int64
	Live  bool // set by the operator rather than bootstrap config
	Set   bool
}

// Prices lists the effective price of every service and account type.
func (c *Catalog) Prices(ctx context.Context) ([]PriceLine, error) {
	var live []models.ServicePrice
	if err := c.db.WithContext(ctx).Find(&live).Error; err != nil {
		return nil, err
	}
	byKey := make(map[string]int64, len(live))
	for _, p := range live {
		byKey[p.Key] = p.Price
	}

	var out []PriceLine
	add := func(o config.Option) {
		line := PriceLine{Key: o.Key, Label: o.Label}
		if p, ok := byKey[o.Key]; ok {
			line.Price, line.Live, line.Set = p, true, true
		} else if o.Price > 0 {
			line.Price, line.Set = o.Price, true
		}
		out = append(out, line)
	}
	for _, o := range c.items.ServiceTypes {
		add(o)
	}
	for _, o := range c.items.AccountTypes {
		if _, dup := config.Find(c.items.ServiceTypes, o.Key); dup {
			continue
		}
		add(o)
	}
	return out, nil
}

func (c *Catalog) priceable(key string) bool {
	if _, ok := config.Find(c.items.ServiceTypes, key); ok {
		return true
	}
	_, ok := config.Find(c.items.AccountTypes, key)
	return ok
}
