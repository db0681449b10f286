package models

import (
	"strings"
	"time"
)

// DefaultScore is the reputation score every account starts with.
const DefaultScore = 100

// UserAccount is a payer or host known to the payment service.
type UserAccount struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Email            string     `gorm:"index" json:"email"`
	WalletAddress    *string    `gorm:"column:wallet_address" json:"wallet_address"`
	Score            *int       `gorm:"column:score" json:"score"`
	IsSuspended      bool       `gorm:"column:is_suspended;not null;default:false" json:"is_suspended"`
	SuspensionReason *string    `gorm:"column:suspension_reason" json:"suspension_reason"`
	SuspensionUntil  *time.Time `gorm:"column:suspension_until" json:"suspension_until"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (UserAccount) TableName() string { return "users" }

// Wallet returns the usable wallet address. Blank values and the literal "null"
// left behind by upstream services count as missing.
func (u *UserAccount) Wallet() (string, bool) {
	if u == nil || u.WalletAddress == nil {
		return "", false
	}
	addr := strings.TrimSpace(*u.WalletAddress)
	if addr == "" || strings.EqualFold(addr, "null") {
		return "", false
	}
	return addr, true
}

// CurrentScore returns the stored score, defaulting to DefaultScore.
func (u *UserAccount) CurrentScore() int {
	if u == nil || u.Score == nil {
		return DefaultScore
	}
	return *u.Score
}
