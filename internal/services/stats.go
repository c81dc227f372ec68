package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/lojf/storebot/internal/models"
)

type Stats struct {
	Users           int64
	Approved        int64
	PendingUsers    int64
	TotalCredit     int64
	DiscountCodes   int64
	SupportTotal    int64
	SupportOpen     int64
	PendingRequests int64
}

// CollectStats runs the operator dashboard counts.
func CollectStats(ctx context.Context, db *gorm.DB) (Stats, error) {
	var st Stats
	db = db.WithContext(ctx)

	counts := []struct {
		dst   *int64
		model any
		where []any
	}{
		{&st.Users, &models.User{}, nil},
		{&st.Approved, &models.User{}, []any{"is_approved = ?", true}},
		{&st.PendingUsers, &models.User{}, []any{"is_approved = ? AND submitted_at IS NOT NULL", false}},
		{&st.DiscountCodes, &models.DiscountCode{}, nil},
		{&st.SupportTotal, &models.SupportMessage{}, nil},
		{&st.SupportOpen, &models.SupportMessage{}, []any{"is_answered = ?", false}},
		{&st.PendingRequests, &models.PurchaseRequest{}, []any{"status = ?", models.RequestPending}},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if len(c.where) > 0 {
			q = q.Where(c.where[0], c.where[1:]...)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return st, err
		}
	}

	if err := db.Model(&models.User{}).Select("COALESCE(SUM(credit), 0)").Scan(&st.TotalCredit).Error; err != nil {
		return st, err
	}
	return st, nil
}
