package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lojf/storebot/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrAlreadyApproved   = errors.New("user already approved")
	ErrIncompleteProfile = errors.New("registration profile incomplete")
	ErrNotPending        = errors.New("no pending registration")
)

type Users struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewUsers(db *gorm.DB, log *zap.Logger) *Users {
	return &Users{db: db, log: log.Named("users")}
}

// Identity is what the chat platform tells us about a sender.
type Identity struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// EnsureUser creates the user on first contact and otherwise refreshes the
// platform names and last activity. It reports whether the row was created.
func (s *Users) EnsureUser(ctx context.Context, id Identity) (models.User, bool, error) {
	now := time.Now()
	u := models.User{
		ID:             id.ID,
		Username:       id.Username,
		FirstName:      id.FirstName,
		LastName:       id.LastName,
		LastActivityAt: now,
	}
	db := s.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&u)
	if res.Error != nil {
		return models.User{}, false, res.Error
	}
	created := res.RowsAffected == 1
	if !created {
		if err := db.Model(&models.User{}).Where("id = ?", id.ID).Updates(map[string]any{
			"username":         id.Username,
			"first_name":       id.FirstName,
			"last_name":        id.LastName,
			"last_activity_at": now,
		}).Error; err != nil {
			return models.User{}, false, err
		}
	}
	var out models.User
	if err := db.First(&out, id.ID).Error; err != nil {
		return models.User{}, false, err
	}
	if created {
		s.log.Info("new user", zap.Int64("user_id", id.ID), zap.String("username", id.Username))
	}
	return out, created, nil
}

func (s *Users) Get(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return u, ErrUserNotFound
	}
	return u, err
}

func (s *Users) Exists(ctx context.Context, id int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (s *Users) All(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := s.db.WithContext(ctx).Order("created_at").Find(&out).Error
	return out, err
}

func (s *Users) Approved(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := s.db.WithContext(ctx).Where("is_approved = ?", true).Order("created_at").Find(&out).Error
	return out, err
}

// IDs lists every known user id, for fan-out.
func (s *Users) IDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}
