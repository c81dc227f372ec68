package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/lojf/storebot/internal/models"
)

var (
	ErrEmptyMessage    = errors.New("support message is empty")
	ErrMessageNotFound = errors.New("support message not found")
	ErrAlreadyAnswered = errors.New("support message already answered")
)

type Support struct {
	db *gorm.DB
}

func NewSupport(db *gorm.DB) *Support { return &Support{db: db} }

func (s *Support) Submit(ctx context.Context, userID int64, text string) (models.SupportMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.SupportMessage{}, ErrEmptyMessage
	}
	msg := models.SupportMessage{UserID: userID, Text: text}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return models.SupportMessage{}, err
	}
	return msg, nil
}

func (s *Support) Get(ctx context.Context, id uint) (models.SupportMessage, error) {
	var msg models.SupportMessage
	err := s.db.WithContext(ctx).First(&msg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return msg, ErrMessageNotFound
	}
	return msg, err
}

// Open lists unanswered messages, oldest first.
func (s *Support) Open(ctx context.Context, limit int) ([]models.SupportMessage, error) {
	var out []models.SupportMessage
	err := s.db.WithContext(ctx).Where("is_answered = ?", false).
		Order("created_at ASC").Order("id ASC").Limit(limit).Find(&out).Error
	return out, err
}

// MarkAnswered flips is_answered once; the message is never mutated otherwise.
func (s *Support) MarkAnswered(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.SupportMessage{}).
		Where("id = ? AND is_answered = ?", id, false).
		Updates(map[string]any{"is_answered": true, "answered_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyAnswered
	}
	return nil
}
