package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	httphandler "github.com/Tonic56/stock-trading-simulator/internal/handler/http"
	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/Tonic56/stock-trading-simulator/internal/repository"
	"github.com/Tonic56/stock-trading-simulator/internal/service"
	"github.com/Tonic56/stock-trading-simulator/lib/errs"
	"github.com/Tonic56/stock-trading-simulator/storage/postgres"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubQuotes map[string]string

func (s stubQuotes) Lookup(_ context.Context, symbol string) (*models.Quote, error) {
	price, ok := s[symbol]
	if !ok {
		return nil, errs.ErrInvalidSymbol
	}
	if price == "down" {
		return nil, errs.ErrQuoteUnavailable
	}
	return &models.Quote{Symbol: symbol, Name: symbol + " Corp", Price: decimal.RequireFromString(price)}, nil
}

type memoryDenylist struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (d *memoryDenylist) Add(_ context.Context, tokenID string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids[tokenID] = true
	return nil
}

func (d *memoryDenylist) Contains(_ context.Context, tokenID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ids[tokenID], nil
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	quotes := stubQuotes{"AAPL": "150.00", "MSFT": "400.00", "DOWN": "down"}

	usersService := service.NewUsersService(repository.NewUsersRepository(db), decimal.RequireFromString("10000.00"), bcrypt.MinCost)
	tradingService := service.NewTradingService(db, quotes, nil, nil, service.BatchAtomic, log)
	tokens := service.NewTokenService("secret", time.Hour, &memoryDenylist{ids: map[string]bool{}})

	r := gin.New()
	httphandler.NewHandler(usersService, tradingService, tokens, nil, log).RegisterRoutes(r)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func registerUser(t *testing.T, r *gin.Engine, name string) string {
	t.Helper()

	w, body := do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": name, "password": "Passw0rd1", "confirmation": "Passw0rd1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return body["accessToken"].(string)
}

func TestAuthFlow(t *testing.T) {
	r := setupRouter(t)

	token := registerUser(t, r, "alice")

	w, _ := do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice", "password": "Passw0rd1", "confirmation": "Passw0rd1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "bob", "password": "weak", "confirmation": "weak",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := do(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "Passw0rd1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["accessToken"])

	w, _ = do(t, r, http.MethodPost, "/api/v1/auth/password", token, gin.H{
		"oldPassword": "Passw0rd1", "newPassword": "Secr3tPass", "confirmation": "Different1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/auth/password", token, gin.H{
		"oldPassword": "Passw0rd1", "newPassword": "Secr3tPass", "confirmation": "Secr3tPass",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/portfolio", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTradingFlow(t *testing.T) {
	r := setupRouter(t)
	token := registerUser(t, r, "alice")

	w, body := do(t, r, http.MethodGet, "/api/v1/quote/aapl", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))

	w, body = do(t, r, http.MethodPost, "/api/v1/trades/buy", token, gin.H{"symbol": "AAPL", "shares": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "buy", body["kind"])

	w, body = do(t, r, http.MethodPost, "/api/v1/trades/sell", token, gin.H{"symbol": "AAPL", "shares": 0})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nothing to trade", body["message"])

	w, body = do(t, r, http.MethodPost, "/api/v1/trades/sell", token, gin.H{"symbol": "AAPL", "shares": 11})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errs.ErrInsufficientShares.Error(), body["error"])

	w, _ = do(t, r, http.MethodPost, "/api/v1/trades/buy", token, gin.H{"symbol": "AAPL", "shares": 1000})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/trades/buy", token, gin.H{"symbol": "NOPE", "shares": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/trades/buy", token, gin.H{"symbol": "DOWN", "shares": 1})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/trades/buy", token, gin.H{"symbol": "AAPL", "shares": -3})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/trades/buy", token, gin.H{"symbol": "AAPL", "shares": 1.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/funds", token, gin.H{"amount": "-5"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/funds", token, gin.H{"amount": "250.25"})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = do(t, r, http.MethodGet, "/api/v1/portfolio", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "8750.25", body["cash"])
	assert.Equal(t, "10250.25", body["totalValue"])
	holdings := body["holdings"].([]any)
	require.Len(t, holdings, 1)
	assert.Equal(t, float64(10), holdings[0].(map[string]any)["totalShares"])

	w, body = do(t, r, http.MethodGet, "/api/v1/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["history"].([]any), 2)
}

func TestBatchEndpoint(t *testing.T) {
	r := setupRouter(t)
	token := registerUser(t, r, "alice")

	w, body := do(t, r, http.MethodPost, "/api/v1/trades/batch", token, gin.H{"items": []gin.H{
		{"symbol": "AAPL", "side": "buy", "shares": 2},
		{"symbol": "MSFT", "side": "buy", "shares": 100},
	}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, float64(1), body["failedAt"])
	assert.Empty(t, body["applied"])

	w, body = do(t, r, http.MethodPost, "/api/v1/trades/batch", token, gin.H{"items": []gin.H{
		{"symbol": "AAPL", "side": "buy", "shares": 2},
		{"symbol": "MSFT", "side": "buy", "shares": 1},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(-1), body["failedAt"])
	assert.Len(t, body["applied"].([]any), 2)

	w, _ = do(t, r, http.MethodPost, "/api/v1/trades/batch", token, gin.H{"items": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := setupRouter(t)

	for _, path := range []string{"/api/v1/portfolio", "/api/v1/history", "/api/v1/quote/AAPL"} {
		w, _ := do(t, r, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}
