package api

import (
	"bank_system/internal/domain" // Importing domain models
	"bank_system/internal/ledger" // Ledger engine, the only writer of balances
	"bank_system/internal/utils"  // Utility functions
	"context"                     // Context for Redis operations
	"errors"                      // Sentinel error matching
	"net/http"                    // HTTP status codes
	"strconv"                     // String conversion
	"time"                        // Time durations

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Fixed-point money
	"github.com/sirupsen/logrus"    // Logging library
)

// DepositLineRequest is one line of a batch deposit form. Amount is a pointer
// so a blank line arrives as nil and is skipped rather than rejected.
type DepositLineRequest struct {
	AccountID uint             `json:"account_id" binding:"required"` // Destination account
	Amount    *decimal.Decimal `json:"amount"`                        // Amount to credit, may be absent
}

// DepositRequest represents a batch deposit request
type DepositRequest struct {
	Deposits []DepositLineRequest `json:"deposits" binding:"required,min=1,dive"` // Deposit lines
}

// TransferRequest represents a transfer request. The amount is validated by
// the ledger engine so a non-positive value maps to the right error, not a
// generic binding failure.
type TransferRequest struct {
	FromID uint            `json:"from_id" binding:"required"` // Source account, must be owned by caller
	ToID   uint            `json:"to_id" binding:"required"`   // Destination account, anyone's
	Amount decimal.Decimal `json:"amount"`                     // Transfer amount
	Memo   string          `json:"memo"`                       // Free-text memo
}

// statusFor maps ledger engine errors to HTTP status codes; anything else is
// a storage fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ListAccountsHandler returns all accounts and balances for the authenticated user
func ListAccountsHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := context.Background()                     // Context for Redis operations
		cacheKey := utils.AccountsKey(userID.(uint))    // Cache key for the account list
		var accounts []accountResponse                  // Accounts to return
		found, err := utils.GetCache(ctx, rdb, cacheKey, &accounts) // Try to get from cache
		// If found in cache, return it
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"accounts": accounts, "cached": true})
			return
		}
		// If not in cache, fetch from the ledger engine
		owned, err := engine.AccountsForUser(c.Request.Context(), userID.(uint))
		if err != nil {
			// Storage fault
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch accounts"})
			return
		}
		accounts = make([]accountResponse, len(owned))
		for i, a := range owned {
			accounts[i] = accountResponse{ID: a.ID, Balance: a.Balance} // Balance snapshot
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, accounts, 60*time.Second) // Cache for 60 seconds
		c.JSON(http.StatusOK, gin.H{"accounts": accounts, "cached": false})
	}
}

// accountResponse is the balance view of one account
type accountResponse struct {
	ID      uint            `json:"id"`      // Account ID
	Balance decimal.Decimal `json:"balance"` // Current balance
}

// OpenAccountHandler opens an additional zero-balance account for the user
func OpenAccountHandler(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		account, err := engine.OpenAccount(c.Request.Context(), userID.(uint))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": userID,      // User ID
				"error":   err.Error(), // Error message
			}).Error("Failed to open account") // Log failure
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open account"})
			return
		}
		// Invalidate the cached account list
		if rdb, ok := c.MustGet("redisClient").(*redis.Client); ok {
			_ = utils.DeleteCache(context.Background(), rdb, utils.AccountsKey(userID.(uint)))
		}
		// Return the new account
		c.JSON(http.StatusCreated, gin.H{"message": "Account opened", "account": accountResponse{ID: account.ID, Balance: account.Balance}})
	}
}

// DepositHandler applies a batch of deposit lines, each as its own atomic
// unit. Blank lines are skipped; a failing line stops the batch but lines
// already applied stay applied, and the response says how many went through.
func DepositHandler(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req DepositRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Convert request lines to engine lines
		lines := make([]ledger.DepositLine, len(req.Deposits))
		for i, d := range req.Deposits {
			lines[i] = ledger.DepositLine{AccountID: d.AccountID, Amount: d.Amount}
		}
		applied, err := engine.DepositBatch(c.Request.Context(), userID.(uint), lines)
		// Invalidate caches for every account owner that received money
		if rdb, ok := c.MustGet("redisClient").(*redis.Client); ok {
			ctx := context.Background()
			invalidated := map[uint]bool{userID.(uint): true}
			utils.InvalidateUserCache(ctx, rdb, userID.(uint))
			for _, entry := range applied {
				if account, aerr := engine.Account(ctx, entry.ToID); aerr == nil && !invalidated[account.UserID] {
					invalidated[account.UserID] = true
					utils.InvalidateUserCache(ctx, rdb, account.UserID)
				}
			}
		}
		// Handle a failed line after the applied ones are accounted for
		if err != nil {
			// Log the error with context
			logrus.WithFields(logrus.Fields{
				"user_id": userID,       // User ID
				"applied": len(applied), // Lines committed before the failure
				"error":   err.Error(),  // Error message
			}).Error("Deposit failed") // Log deposit failure
			c.JSON(statusFor(err), gin.H{"error": "Deposit failed", "applied": len(applied)})
			return
		}
		// Log successful deposit batch
		logrus.WithFields(logrus.Fields{
			"user_id":   userID,                          // User ID
			"applied":   len(applied),                    // Lines committed
			"type":      "deposit",                       // Transaction type
			"timestamp": time.Now().Format(time.RFC3339), // Current timestamp
		}).Info("Deposit transaction") // Log deposit success
		// Return success response with the receipts
		c.JSON(http.StatusOK, gin.H{"message": "Deposit successful", "applied": len(applied), "transactions": applied})
	}
}

// TransferHandler moves money between two accounts; the source must belong to
// the authenticated user. Overdrafts are allowed by design of the product, so
// no funds check happens here or in the engine.
func TransferHandler(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req TransferRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Atomic transfer through the ledger engine
		entry, err := engine.Transfer(c.Request.Context(), userID.(uint), req.FromID, req.ToID, req.Amount, req.Memo)
		// Handle transaction result
		if err != nil {
			// Log the error with context
			logrus.WithFields(logrus.Fields{
				"user_id": userID,      // Acting user ID
				"from_id": req.FromID,  // Source account
				"to_id":   req.ToID,    // Destination account
				"amount":  req.Amount,  // Transfer amount
				"error":   err.Error(), // Error message
			}).Error("Transfer failed") // Log transfer failure
			c.JSON(statusFor(err), gin.H{"error": "Transfer failed"})
			return
		}
		// Log successful transfer
		logrus.WithFields(logrus.Fields{
			"user_id":   userID,                          // Acting user ID
			"from_id":   req.FromID,                      // Source account
			"to_id":     req.ToID,                        // Destination account
			"amount":    req.Amount,                      // Transfer amount
			"reference": entry.Reference,                 // Ledger entry reference
			"type":      "transfer",                      // Transaction type
			"timestamp": time.Now().Format(time.RFC3339), // Current timestamp
		}).Info("Transfer transaction") // Log transfer success
		// Invalidate caches for both sides of the transfer
		if rdb, ok := c.MustGet("redisClient").(*redis.Client); ok {
			ctx := context.Background()
			utils.InvalidateUserCache(ctx, rdb, userID.(uint)) // Sender side
			// The destination may belong to another user
			if account, aerr := engine.Account(ctx, req.ToID); aerr == nil && account.UserID != userID.(uint) {
				utils.InvalidateUserCache(ctx, rdb, account.UserID) // Recipient side
			}
		}
		// Return success response with the receipt
		c.JSON(http.StatusOK, gin.H{"message": "Transfer successful", "transaction": entry})
	}
}

// historyResponse is one served (and cached) page of ledger history
type historyResponse struct {
	Transactions []domain.Transaction `json:"transactions"` // One page of ledger entries
	Page         int                  `json:"page"`         // Current page
	PageSize     int                  `json:"page_size"`    // Page size
	Total        int64                `json:"total"`        // Total entries
	TotalPages   int                  `json:"total_pages"`  // Total pages
	Cached       bool                 `json:"cached"`       // Served from cache
}

// HistoryHandler returns the paginated ledger history touching any of the
// authenticated user's accounts
func HistoryHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		page := 1      // Default page
		pageSize := 20 // Default page size
		// If page exists in query
		if p := c.Query("page"); p != "" {
			// Convert page to integer
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v // Set page if valid
			}
		}
		// If page_size exists in query
		if ps := c.Query("page_size"); ps != "" {
			// Convert page_size to integer
			if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
				pageSize = v // Set page size if valid
			}
		}
		offset := (page - 1) * pageSize                            // Calculate offset
		cacheKey := utils.HistoryKey(userID.(uint), page, pageSize) // Redis cache key
		ctx := context.Background()                                // Context for Redis operations
		var cached historyResponse
		// Try to get from cache
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		// If found in cache, return it
		if err == nil && found {
			cached.Cached = true
			c.JSON(http.StatusOK, cached)
			return
		}
		// Fetch the page from the ledger engine
		entries, total, err := engine.History(c.Request.Context(), userID.(uint), offset, pageSize)
		if err != nil {
			// If fetching fails, return error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		resp := historyResponse{
			Transactions: entries,                                   // One page of ledger entries
			Page:         page,                                      // Current page
			PageSize:     pageSize,                                  // Page size
			Total:        total,                                     // Total entries
			TotalPages:   (int(total) + pageSize - 1) / pageSize,    // Total pages
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second) // Cache for 60 seconds
		c.JSON(http.StatusOK, resp)                                  // Return transaction history
	}
}
