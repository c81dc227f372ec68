package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lojf/storebot/internal/models"
)

// Profile is the data collected by the registration flow.
type Profile struct {
	Phone    string
	FullName string
	OS       string
}

// CompleteRegistration stores the profile and hands it to the operator for review.
func (s *Users) CompleteRegistration(ctx context.Context, id int64, p Profile) (models.User, error) {
	p.FullName = strings.TrimSpace(p.FullName)
	if p.Phone == "" || p.FullName == "" || p.OS == "" {
		return models.User{}, ErrIncompleteProfile
	}

	var out models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if out.IsApproved {
			return ErrAlreadyApproved
		}
		now := time.Now()
		out.Phone = p.Phone
		out.FullName = p.FullName
		out.RequestedOS = p.OS
		out.SubmittedAt = &now
		return tx.Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
			"phone":        p.Phone,
			"full_name":    p.FullName,
			"requested_os": p.OS,
			"submitted_at": now,
		}).Error
	})
	if err != nil {
		return models.User{}, err
	}
	s.log.Info("registration submitted", zap.Int64("user_id", id), zap.String("os", p.OS))
	return out, nil
}

// Approve flips is_approved exactly once, and only for a submitted registration.
func (s *Users) Approve(ctx context.Context, id int64) (models.User, error) {
	var out models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND is_approved = ? AND submitted_at IS NOT NULL", id, false).
			Update("is_approved", true)
		if res.Error != nil {
			return res.Error
		}
		if err := tx.First(&out, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if res.RowsAffected == 0 {
			return notPending(out)
		}
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	s.log.Info("user approved", zap.Int64("user_id", id))
	return out, nil
}

// Reject clears a pending submission. The row and the collected profile are
// kept so the user can register again.
func (s *Users) Reject(ctx context.Context, id int64) (models.User, error) {
	var out models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND is_approved = ? AND submitted_at IS NOT NULL", id, false).
			Update("submitted_at", nil)
		if res.Error != nil {
			return res.Error
		}
		if err := tx.First(&out, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if res.RowsAffected == 0 {
			return notPending(out)
		}
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	s.log.Info("user rejected", zap.Int64("user_id", id))
	return out, nil
}

func notPending(u models.User) error {
	if u.IsApproved {
		return ErrAlreadyApproved
	}
	return ErrNotPending
}

// Pending returns submitted, not yet approved registrations, oldest first.
func (s *Users) Pending(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := s.db.WithContext(ctx).
		Where("is_approved = ? AND submitted_at IS NOT NULL", false).
		Order("submitted_at ASC").
		Find(&out).Error
	return out, err
}
