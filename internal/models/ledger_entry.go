package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntryKind identifies the operation that mutated a wallet.
type LedgerEntryKind string

const (
	LedgerEntryBuy             LedgerEntryKind = "buy"
	LedgerEntrySell            LedgerEntryKind = "sell"
	LedgerEntryChatGrant       LedgerEntryKind = "chat_grant"
	LedgerEntryAdminAdjustment LedgerEntryKind = "admin_adjustment"
)

// LedgerEntry is an immutable record of one wallet mutation.
// This is append-only data, so there is no Base embed and no soft delete.
type LedgerEntry struct {
	ID           string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind         LedgerEntryKind `gorm:"size:32;not null" json:"kind"`
	CompanyID    *string         `gorm:"type:uuid" json:"company_id,omitempty"`
	PositionID   *string         `gorm:"type:uuid" json:"position_id,omitempty"`
	ChatID       *string         `gorm:"type:uuid" json:"chat_id,omitempty"`
	ActorID      *string         `gorm:"type:uuid" json:"actor_id,omitempty"`
	Shares       int64           `gorm:"not null;default:0" json:"shares"`
	Price        decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"price"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Profit       decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"profit"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"balance_after"`
	CreatedAt    time.Time       `gorm:"not null;index" json:"created_at"`
}

// BeforeCreate assigns the entry a UUIDv7.
func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	return nil
}
