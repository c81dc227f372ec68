package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"gorm.io/gorm"

	"github.com/lojf/storebot/internal/models"
)

var (
	reLetters = regexp.MustCompile(`[A-Za-z]`)
	// Only allow digits, spaces, +, -, (, )
	reAllowed = regexp.MustCompile(`^[0-9+\-\s\(\)]+$`)
	// E.164-ish: + followed by 8..15 digits (no leading 0 after +)
	reE164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
)

// NormPhone normalizes phone numbers to +E.164. cc is the country code used
// for local numbers, without the plus (e.g. "98").
// Rules: strip spaces/dashes/parens; 00.. -> +..; cc.. -> +cc..; 0.. -> +cc..; ensure leading +
// Returns "" when the result is not a plausible number.
func NormPhone(p, cc string) string {
	s := strings.TrimSpace(p)

	if s == "" {
		return ""
	}
	if reLetters.MatchString(s) {
		return ""
	}
	if !reAllowed.MatchString(s) {
		return ""
	}

	// strip separators
	repl := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\n", "", "\r", "")
	s = repl.Replace(s)

	// 00.. -> +..
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	// cc.. (no plus) -> +cc..
	if cc != "" && strings.HasPrefix(s, cc) {
		s = "+" + s
	}
	// 0.. (local) -> +cc..
	if cc != "" && strings.HasPrefix(s, "0") {
		s = "+" + cc + s[1:]
	}
	// ensure leading +
	if !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	if !reE164.MatchString(s) {
		return ""
	}
	return s
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func altPhones(p, cc string) []string {
	out := []string{}
	n := NormPhone(p, cc)
	raw := strings.TrimSpace(p)

	if n != "" {
		out = append(out, n)
	}
	if raw != n && raw != "" {
		out = append(out, raw)
	}
	if cc != "" && strings.HasPrefix(n, "+"+cc) && len(n) > len(cc)+1 {
		out = append(out, "0"+n[len(cc)+1:]) // 0912...
		out = append(out, n[1:])             // 98912...
	}
	return out
}

// FindByPhone tries normalized variants, then a digits-only SQL compare.
func (s *Users) FindByPhone(ctx context.Context, phone, cc string) (models.User, error) {
	var u models.User
	db := s.db.WithContext(ctx)

	for _, cand := range altPhones(phone, cc) {
		err := db.Where("phone = ?", cand).First(&u).Error
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return u, err
		}
	}

	// fallback: digits-only compare in SQL (ignore +, spaces, -, ())
	inDigits := digitsOnly(phone)
	if inDigits != "" {
		q := `
			REPLACE(REPLACE(REPLACE(REPLACE(REPLACE(phone,'+',''),' ',''),'-',''),'(',''),')','')
		`
		if err := db.Where(q+" = ?", inDigits).First(&u).Error; err == nil {
			return u, nil
		}
	}

	return u, ErrUserNotFound
}
