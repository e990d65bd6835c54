package ledger

import (
	"context" // Request-scoped cancellation
	"errors"  // Sentinel error matching

	"bank_system/internal/domain" // Importing domain models

	"github.com/google/uuid"        // Transaction references
	"github.com/shopspring/decimal" // Fixed-point money
	"gorm.io/gorm"                  // GORM ORM library
)

// Engine executes all money movement. Every deposit and transfer runs inside
// one database transaction, so a balance change and its ledger entry become
// visible together or not at all. Balance updates are single-statement
// increments, which the database serializes on its own; the engine holds no
// locks of its own and concurrent operations on disjoint accounts proceed in
// parallel.
type Engine struct {
	db *gorm.DB
}

// NewEngine wraps a database handle in a ledger engine.
func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// DepositLine is one line of a batch deposit. A nil amount marks a line the
// caller left blank.
type DepositLine struct {
	AccountID uint             // Destination account
	Amount    *decimal.Decimal // Amount to credit, nil or zero to skip
}

// Memos recorded when the operation defines one.
const (
	depositMemo  = "Deposit"
	transferMemo = "Transfer"
)

// AccountsForUser returns every account owned by the user.
func (e *Engine) AccountsForUser(ctx context.Context, userID uint) ([]domain.Account, error) {
	var accounts []domain.Account
	if err := e.db.WithContext(ctx).Where("user_id = ?", userID).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// Account returns a single account by id, or ErrNotFound.
func (e *Engine) Account(ctx context.Context, accountID uint) (*domain.Account, error) {
	var account domain.Account
	if err := e.db.WithContext(ctx).First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// OpenAccount creates a new zero-balance account for the user.
func (e *Engine) OpenAccount(ctx context.Context, userID uint) (*domain.Account, error) {
	account := domain.Account{UserID: userID, Balance: decimal.Zero}
	if err := e.db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// OwnsAccount reports whether the account exists and its owner is the user.
// Read-only. Transfer re-runs the same check inside its own transaction, so
// the gate a debit relies on cannot race the debit itself.
func (e *Engine) OwnsAccount(ctx context.Context, userID, accountID uint) (bool, error) {
	return ownsAccount(e.db.WithContext(ctx), userID, accountID)
}

func ownsAccount(tx *gorm.DB, userID, accountID uint) (bool, error) {
	var account domain.Account
	if err := tx.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}
	return account.UserID == userID, nil
}

// adjustBalance adds delta (negative for debits) to the account balance as a
// single statement. Zero rows affected means the account does not exist.
func adjustBalance(tx *gorm.DB, accountID uint, delta decimal.Decimal) error {
	res := tx.Model(&domain.Account{}).
		Where("id = ?", accountID).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Deposit credits amount to the destination account and records the ledger
// entry, atomically. The destination has no ownership restriction; only
// debits are gated on ownership. Non-positive amounts are ErrInvalidAmount.
func (e *Engine) Deposit(ctx context.Context, userID, accountID uint, amount decimal.Decimal) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	entry := domain.Transaction{
		Reference: uuid.NewString(),
		UserID:    userID,
		ToID:      accountID,
		Amount:    amount,
		Memo:      depositMemo,
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := adjustBalance(tx, accountID, amount); err != nil {
			return err // Rollback
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// DepositBatch applies each line as its own independent atomic deposit,
// matching how deposit forms are submitted: lines with a nil or zero amount
// are skipped silently, and a failing line stops the batch without rolling
// back lines already committed. Returns the entries that were applied.
func (e *Engine) DepositBatch(ctx context.Context, userID uint, lines []DepositLine) ([]domain.Transaction, error) {
	applied := make([]domain.Transaction, 0, len(lines))
	for _, line := range lines {
		if line.Amount == nil || line.Amount.IsZero() {
			continue // Blank line, not an error
		}
		entry, err := e.Deposit(ctx, userID, line.AccountID, *line.Amount)
		if err != nil {
			return applied, err
		}
		applied = append(applied, *entry)
	}
	return applied, nil
}

// Transfer debits the source, credits the destination, and records one ledger
// entry, all in one transaction. The source must be owned by the acting user;
// that check runs inside the transaction. The source balance is not checked
// first, so overdrafts are permitted.
func (e *Engine) Transfer(ctx context.Context, userID, fromID, toID uint, amount decimal.Decimal, memo string) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if memo == "" {
		memo = transferMemo
	}
	entry := domain.Transaction{
		Reference: uuid.NewString(),
		UserID:    userID,
		FromID:    &fromID,
		ToID:      toID,
		Amount:    amount,
		Memo:      memo,
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owns, err := ownsAccount(tx, userID, fromID)
		if err != nil {
			return err
		}
		if !owns {
			return ErrUnauthorized // Debit and credit never attempted
		}
		if err := adjustBalance(tx, fromID, amount.Neg()); err != nil {
			return err
		}
		if err := adjustBalance(tx, toID, amount); err != nil {
			return err // Rolls the debit back too
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// History returns ledger entries touching any of the user's accounts, newest
// first, along with the total count for pagination.
func (e *Engine) History(ctx context.Context, userID uint, offset, limit int) ([]domain.Transaction, int64, error) {
	owned := e.db.Model(&domain.Account{}).Select("id").Where("user_id = ?", userID)
	query := e.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("from_id IN (?) OR to_id IN (?)", owned, owned)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []domain.Transaction
	if err := query.Order("txn_date desc, id desc").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
