package domain

import (
	"time" // Timestamps

	"github.com/shopspring/decimal" // Fixed-point money, no float drift
)

// Transaction Model. Append-only ledger entry: written once by the ledger
// engine inside the same database transaction as the balance change it
// records, never updated or deleted afterwards.
type Transaction struct {
	ID        uint            `gorm:"primaryKey"`                     // Primary key
	Reference string          `gorm:"size:36;uniqueIndex;not null"`   // Opaque UUID for receipts
	UserID    uint            `gorm:"index;not null"`                 // Acting user
	FromID    *uint           `gorm:"column:from_id;index"`           // Source account, NULL for deposits
	ToID      uint            `gorm:"column:to_id;index;not null"`    // Destination account
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null"`    // Amount moved, always positive
	Memo      string          `gorm:"not null"`                       // Free-text memo
	TxnDate   time.Time       `gorm:"column:txn_date;autoCreateTime"` // When the movement happened

	// Associations, declared so AutoMigrate enforces the account foreign keys.
	FromAccount *Account `gorm:"foreignKey:FromID" json:"-"`
	ToAccount   *Account `gorm:"foreignKey:ToID" json:"-"`
}
