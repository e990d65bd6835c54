package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"bank_system/internal/db"
	"bank_system/internal/domain"
	"bank_system/internal/ledger"
	"bank_system/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

// newTestRouter wires the routes the way cmd/server does, against a
// throwaway SQLite database. The redis client points at a closed port so
// every cache lookup misses and the handlers fall through to the database.
func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + filepath.Join(t.TempDir(), "bank.db") + "?_busy_timeout=5000"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	engine := ledger.NewEngine(gdb)
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})

	r := gin.New()
	r.POST("/user", RegisterHandler(gdb))
	r.GET("/user", LoginHandler(gdb, testSecret, 20*time.Minute))

	bankGroup := r.Group("/bank")
	bankGroup.Use(middleware.JWTAuthMiddleware(testSecret), func(c *gin.Context) {
		c.Set("redisClient", rdb)
		c.Next()
	})
	bankGroup.GET("/accounts", ListAccountsHandler(engine, rdb))
	bankGroup.POST("/accounts", OpenAccountHandler(engine))
	bankGroup.POST("/deposit", DepositHandler(engine))
	bankGroup.POST("/transfer", TransferHandler(engine))
	bankGroup.GET("/transactions", HistoryHandler(engine, rdb))

	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuthMiddleware(testSecret), middleware.AdminOnlyMiddleware(gdb))
	adminGroup.GET("/users", ListUsersHandler(gdb, rdb))
	adminGroup.GET("/transactions", ListTransactionsHandler(gdb, rdb))

	return r, gdb
}

func perform(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func registerAndLogin(t *testing.T, r *gin.Engine, username string) string {
	t.Helper()
	creds := gin.H{"username": username, "password": "hunter2pass"}
	if w := perform(t, r, http.MethodPost, "/user", "", creds); w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", username, w.Code, w.Body.String())
	}
	w := perform(t, r, http.MethodGet, "/user", "", creds)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, w.Code, w.Body.String())
	}
	token, _ := decodeBody(t, w)["token"].(string)
	if token == "" {
		t.Fatalf("login %s: empty token", username)
	}
	return token
}

func openAccount(t *testing.T, r *gin.Engine, token string) uint {
	t.Helper()
	w := perform(t, r, http.MethodPost, "/bank/accounts", token, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("open account: status %d: %s", w.Code, w.Body.String())
	}
	account, _ := decodeBody(t, w)["account"].(map[string]any)
	id, _ := account["id"].(float64)
	if id == 0 {
		t.Fatalf("open account: no id in %s", w.Body.String())
	}
	return uint(id)
}

func TestRegisterValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	cases := []struct {
		name string
		body gin.H
		want int
	}{
		{"valid", gin.H{"username": "alice", "password": "hunter2pass"}, http.StatusCreated},
		{"duplicate", gin.H{"username": "alice", "password": "hunter2pass"}, http.StatusBadRequest},
		{"numeric username", gin.H{"username": "alice99", "password": "hunter2pass"}, http.StatusBadRequest},
		{"short password", gin.H{"username": "bob", "password": "short"}, http.StatusBadRequest},
		{"missing password", gin.H{"username": "bob"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := perform(t, r, http.MethodPost, "/user", "", tc.body); w.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	r, _ := newTestRouter(t)
	registerAndLogin(t, r, "alice")

	w := perform(t, r, http.MethodGet, "/user", "", gin.H{"username": "alice", "password": "wrongwrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d, want 401", w.Code)
	}
	w = perform(t, r, http.MethodGet, "/user", "", gin.H{"username": "nobody", "password": "hunter2pass"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: status = %d, want 401", w.Code)
	}
}

func TestBankRoutesRequireToken(t *testing.T) {
	r, _ := newTestRouter(t)

	if w := perform(t, r, http.MethodGet, "/bank/accounts", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}
	if w := perform(t, r, http.MethodGet, "/bank/accounts", "not-a-jwt", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", w.Code)
	}
}

func TestDepositBatchAndBalances(t *testing.T) {
	r, _ := newTestRouter(t)
	token := registerAndLogin(t, r, "alice")
	a1 := openAccount(t, r, token)
	a2 := openAccount(t, r, token)

	// One funded line, one blank line: only the funded line applies.
	w := perform(t, r, http.MethodPost, "/bank/deposit", token, gin.H{
		"deposits": []gin.H{
			{"account_id": a1, "amount": "50"},
			{"account_id": a2},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("deposit: status %d: %s", w.Code, w.Body.String())
	}
	if applied, _ := decodeBody(t, w)["applied"].(float64); applied != 1 {
		t.Errorf("applied = %v, want 1", applied)
	}

	w = perform(t, r, http.MethodGet, "/bank/accounts", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accounts: status %d: %s", w.Code, w.Body.String())
	}
	accounts, _ := decodeBody(t, w)["accounts"].([]any)
	if len(accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(accounts))
	}
	balances := map[uint]string{}
	for _, raw := range accounts {
		a := raw.(map[string]any)
		balances[uint(a["id"].(float64))] = a["balance"].(string)
	}
	if balances[a1] != "50" {
		t.Errorf("account %d balance = %q, want 50", a1, balances[a1])
	}
	if balances[a2] != "0" {
		t.Errorf("account %d balance = %q, want 0", a2, balances[a2])
	}
}

func TestTransferEndToEnd(t *testing.T) {
	r, gdb := newTestRouter(t)
	aliceToken := registerAndLogin(t, r, "alice")
	bobToken := registerAndLogin(t, r, "bob")
	aliceAcct := openAccount(t, r, aliceToken)
	bobAcct := openAccount(t, r, bobToken)

	// Fund Alice first.
	w := perform(t, r, http.MethodPost, "/bank/deposit", aliceToken, gin.H{
		"deposits": []gin.H{{"account_id": aliceAcct, "amount": "100"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("deposit: status %d: %s", w.Code, w.Body.String())
	}

	w = perform(t, r, http.MethodPost, "/bank/transfer", aliceToken, gin.H{
		"from_id": aliceAcct, "to_id": bobAcct, "amount": "40", "memo": "rent",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("transfer: status %d: %s", w.Code, w.Body.String())
	}

	var from, to domain.Account
	if err := gdb.First(&from, aliceAcct).Error; err != nil {
		t.Fatalf("load source: %v", err)
	}
	if err := gdb.First(&to, bobAcct).Error; err != nil {
		t.Fatalf("load destination: %v", err)
	}
	if from.Balance.String() != "60" || to.Balance.String() != "40" {
		t.Errorf("balances = %s/%s, want 60/40", from.Balance, to.Balance)
	}

	// Bob's history sees the incoming transfer.
	w = perform(t, r, http.MethodGet, "/bank/transactions", bobToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: status %d: %s", w.Code, w.Body.String())
	}
	if total, _ := decodeBody(t, w)["total"].(float64); total != 1 {
		t.Errorf("bob history total = %v, want 1", total)
	}
}

func TestTransferErrorStatuses(t *testing.T) {
	r, _ := newTestRouter(t)
	aliceToken := registerAndLogin(t, r, "alice")
	bobToken := registerAndLogin(t, r, "bob")
	aliceAcct := openAccount(t, r, aliceToken)
	bobAcct := openAccount(t, r, bobToken)

	cases := []struct {
		name string
		body gin.H
		want int
	}{
		{"not own source", gin.H{"from_id": bobAcct, "to_id": aliceAcct, "amount": "10"}, http.StatusForbidden},
		{"missing destination", gin.H{"from_id": aliceAcct, "to_id": 9999, "amount": "10"}, http.StatusNotFound},
		{"zero amount", gin.H{"from_id": aliceAcct, "to_id": bobAcct, "amount": "0"}, http.StatusBadRequest},
		{"negative amount", gin.H{"from_id": aliceAcct, "to_id": bobAcct, "amount": "-5"}, http.StatusBadRequest},
		{"malformed body", gin.H{"from_id": "nope"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := perform(t, r, http.MethodPost, "/bank/transfer", aliceToken, tc.body); w.Code != tc.want {
			t.Errorf("%s: status = %d, want %d: %s", tc.name, w.Code, tc.want, w.Body.String())
		}
	}
}

func TestAdminRoutes(t *testing.T) {
	r, gdb := newTestRouter(t)
	userToken := registerAndLogin(t, r, "alice")

	// Seed an admin directly; registration never grants the role.
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2pass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	admin := domain.User{Username: "auditor", Password: string(hash), Role: "admin"}
	if err := gdb.Create(&admin).Error; err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	w := perform(t, r, http.MethodGet, "/user", "", gin.H{"username": "auditor", "password": "hunter2pass"})
	if w.Code != http.StatusOK {
		t.Fatalf("admin login: status %d: %s", w.Code, w.Body.String())
	}
	adminToken, _ := decodeBody(t, w)["token"].(string)

	if w := perform(t, r, http.MethodGet, "/admin/users", userToken, nil); w.Code != http.StatusForbidden {
		t.Errorf("non-admin: status = %d, want 403", w.Code)
	}
	w = perform(t, r, http.MethodGet, "/admin/users", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin users: status %d: %s", w.Code, w.Body.String())
	}
	if users, _ := decodeBody(t, w)["users"].([]any); len(users) != 2 {
		t.Errorf("users = %d, want 2", len(users))
	}
	if w := perform(t, r, http.MethodGet, "/admin/transactions?kind=deposit", adminToken, nil); w.Code != http.StatusOK {
		t.Errorf("admin transactions: status = %d, want 200: %s", w.Code, w.Body.String())
	}
}
