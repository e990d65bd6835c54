package domain

import "github.com/shopspring/decimal" // Fixed-point money, no float drift

// Account Model. A user may hold any number of accounts; the balance is only
// ever mutated through the ledger engine.
type Account struct {
	ID      uint            `gorm:"primaryKey"`                            // Primary key
	UserID  uint            `gorm:"index;not null"`                        // Foreign key to the owning User
	Balance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"` // Account balance
}
