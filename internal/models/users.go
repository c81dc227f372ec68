package models

import "time"

// User is keyed by the external chat platform id.
type User struct {
	ID        int64 `gorm:"primaryKey;autoIncrement:false"`
	Username  string
	FirstName string
	LastName  string

	// filled in by the registration flow
	Phone       string
	FullName    string
	RequestedOS string

	Credit      int64      `gorm:"not null;default:0;check:chk_users_credit_non_negative,credit >= 0"`
	IsApproved  bool       `gorm:"not null;default:false;index"`
	SubmittedAt *time.Time // registration handed to the operator; cleared on reject

	CreatedAt      time.Time // registration time
	LastActivityAt time.Time
	UpdatedAt      time.Time
}

// DisplayName prefers the registered full name, then the platform names.
func (u User) DisplayName() string {
	switch {
	case u.FullName != "":
		return u.FullName
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	}
	return "unknown"
}

type SupportMessage struct {
	ID         uint  `gorm:"primaryKey"`
	UserID     int64 `gorm:"not null;index"`
	Text       string
	IsAnswered bool `gorm:"not null;default:false;index"`
	AnsweredAt *time.Time
	CreatedAt  time.Time
}
