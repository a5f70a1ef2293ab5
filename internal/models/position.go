package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a user's holding in one company. PurchasePrice is the
// share-weighted average cost basis. A fully sold position is deactivated,
// never deleted, and at most one active position exists per (user, company).
type Position struct {
	Base
	UserID        string          `gorm:"type:uuid;not null;index" json:"user_id"`
	CompanyID     string          `gorm:"type:uuid;not null;index" json:"company_id"`
	Shares        int64           `gorm:"not null" json:"shares"`
	PurchasePrice decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"purchase_price"`
	CurrentPrice  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"current_price"`
	PurchaseDate  time.Time       `gorm:"not null" json:"purchase_date"`
	IsActive      bool            `gorm:"not null;default:true;index" json:"is_active"`

	Company Company `gorm:"foreignKey:CompanyID" json:"company"`
}

// CostBasisTotal returns the total amount paid for the shares still held.
func (p *Position) CostBasisTotal() decimal.Decimal {
	return p.PurchasePrice.Mul(decimal.NewFromInt(p.Shares))
}
