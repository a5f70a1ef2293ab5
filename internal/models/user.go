package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a platform account: identity plus wallet and lifetime counters.
type User struct {
	Base
	Nickname  string `gorm:"uniqueIndex;size:80;not null" json:"nickname"`
	Name      string `gorm:"size:50;not null" json:"name"`
	FullName  string `gorm:"size:100" json:"full_name"`
	Email     string `gorm:"uniqueIndex;size:120;not null" json:"email"`
	Phone     string `gorm:"size:20" json:"phone"`
	AvatarURL string `gorm:"size:255" json:"avatar_url"`
	Password  string `gorm:"not null" json:"-"`

	Balance decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"balance"`
	IsAdmin bool            `gorm:"default:false" json:"is_admin"`
	IsOwner bool            `gorm:"default:false" json:"is_owner"`

	TotalInvested         decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_invested"`
	TotalWithdrawn        decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_withdrawn"`
	TotalProfit           decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_profit"`
	InvestmentsCount      int             `gorm:"not null;default:0" json:"investments_count"`
	SuccessfulInvestments int             `gorm:"not null;default:0" json:"successful_investments"`
	FailedInvestments     int             `gorm:"not null;default:0" json:"failed_investments"`

	RefreshTokenHash    string     `gorm:"size:64" json:"-"`
	FailedLoginAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
}
