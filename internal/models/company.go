package models

import "github.com/shopspring/decimal"

// Company is an investable instrument from the fixed catalog.
type Company struct {
	Base
	Name        string          `gorm:"size:100;not null" json:"name"`
	Symbol      string          `gorm:"size:10;uniqueIndex;not null" json:"symbol"`
	Category    string          `gorm:"size:50;not null" json:"category"`
	BasePrice   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"base_price"`
	Description string          `json:"description"`
	Icon        string          `gorm:"size:50" json:"icon"`
}
