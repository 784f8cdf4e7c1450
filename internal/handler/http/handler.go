package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Tonic56/stock-trading-simulator/internal/handler/middleware"
	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/Tonic56/stock-trading-simulator/internal/service"
	"github.com/Tonic56/stock-trading-simulator/internal/websocket"
	"github.com/Tonic56/stock-trading-simulator/lib/errs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla_ws "github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

type Handler struct {
	usersService   service.UsersService
	tradingService service.TradingService
	tokens         service.TokenService
	wsManager      *websocket.Manager
	log            *slog.Logger
	upgrader       gorilla_ws.Upgrader
}

func NewHandler(
	usersService service.UsersService,
	tradingService service.TradingService,
	tokens service.TokenService,
	wsManager *websocket.Manager,
	log *slog.Logger,
) *Handler {
	return &Handler{
		usersService:   usersService,
		tradingService: tradingService,
		tokens:         tokens,
		wsManager:      wsManager,
		log:            log,
		upgrader: gorilla_ws.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	auth := middleware.AuthMiddleware(h.tokens, h.log)

	api := router.Group("/api/v1", middleware.NoCache())
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", h.register)
			authGroup.POST("/login", h.login)
			authGroup.POST("/logout", auth, h.logout)
			authGroup.POST("/password", auth, h.changePassword)
		}

		api.GET("/quote/:symbol", auth, h.quote)
		api.GET("/portfolio", auth, h.portfolio)
		api.POST("/funds", auth, h.deposit)
		api.GET("/history", auth, h.history)

		trades := api.Group("/trades", auth)
		{
			trades.POST("/buy", h.buy)
			trades.POST("/sell", h.sell)
			trades.POST("/batch", h.batch)
		}

		if h.wsManager != nil {
			api.GET("/ws", auth, h.wsConnect)
		}
	}
}

// errorStatus maps a service error to its HTTP status and client message.
// Unknown errors are logged and hidden behind a generic 500.
func (h *Handler) errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrInvalidQuantity),
		errors.Is(err, errs.ErrInvalidSymbol),
		errors.Is(err, errs.ErrInvalidAmount),
		errors.Is(err, errs.ErrInvalidSide),
		errors.Is(err, errs.ErrInvalidBatch),
		errors.Is(err, errs.ErrMissingField),
		errors.Is(err, errs.ErrCredentialPolicy),
		errors.Is(err, errs.ErrCredentialMismatch):
		return http.StatusBadRequest, rootMessage(err)
	case errors.Is(err, errs.ErrInvalidCredentials), errors.Is(err, errs.ErrInvalidToken):
		return http.StatusUnauthorized, rootMessage(err)
	case errors.Is(err, errs.ErrInsufficientFunds),
		errors.Is(err, errs.ErrInsufficientShares),
		errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, rootMessage(err)
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, rootMessage(err)
	case errors.Is(err, errs.ErrQuoteUnavailable):
		return http.StatusServiceUnavailable, rootMessage(err)
	default:
		h.log.Error("unhandled service error", slog.Any("error", err))
		return http.StatusInternalServerError, "internal server error"
	}
}

// rootMessage strips the operation prefixes added on the way up.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		errs.ErrInvalidQuantity, errs.ErrInvalidSymbol, errs.ErrInvalidAmount, errs.ErrInvalidSide,
		errs.ErrInvalidBatch, errs.ErrMissingField, errs.ErrCredentialPolicy, errs.ErrCredentialMismatch,
		errs.ErrInvalidCredentials, errs.ErrInvalidToken, errs.ErrInsufficientFunds,
		errs.ErrInsufficientShares, errs.ErrAlreadyExists, errs.ErrNotFound, errs.ErrQuoteUnavailable,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := h.errorStatus(err)
	c.JSON(status, gin.H{"error": msg})
}

func userIDFrom(c *gin.Context) (uuid.UUID, bool) {
	raw, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	userID, ok := raw.(uuid.UUID)
	return userID, ok
}

func (h *Handler) mustUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := userIDFrom(c)
	if !ok {
		h.log.Error("handler: userID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return userID, ok
}

type registerRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.usersService.Register(c.Request.Context(), req.Username, req.Password, req.Confirmation)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.issueToken(c, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.usersService.VerifyCredential(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.issueToken(c, http.StatusOK, user)
}

func (h *Handler) issueToken(c *gin.Context, status int, user *models.User) {
	token, expiresAt, err := h.tokens.Issue(user)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(status, gin.H{
		"accessToken": token,
		"expiresAt":   expiresAt,
		"userID":      user.ID,
	})
}

func (h *Handler) logout(c *gin.Context) {
	claims, ok := c.MustGet(middleware.ClaimsKey).(*service.Claims)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.tokens.Revoke(c.Request.Context(), claims); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

type changePasswordRequest struct {
	OldPassword  string `json:"oldPassword"`
	NewPassword  string `json:"newPassword"`
	Confirmation string `json:"confirmation"`
}

func (h *Handler) changePassword(c *gin.Context) {
	userID, ok := h.mustUserID(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.usersService.ChangePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword, req.Confirmation)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

func (h *Handler) quote(c *gin.Context) {
	q, err := h.tradingService.Quote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

func (h *Handler) portfolio(c *gin.Context) {
	userID, ok := h.mustUserID(c)
	if !ok {
		return
	}

	view, err := h.tradingService.ViewPortfolio(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

type tradeRequest struct {
	Symbol string `json:"symbol"`
	Shares *int64 `json:"shares"`
}

func (h *Handler) buy(c *gin.Context) {
	h.trade(c, h.tradingService.Buy)
}

func (h *Handler) sell(c *gin.Context) {
	h.trade(c, h.tradingService.Sell)
}

type tradeFunc func(ctx context.Context, userID uuid.UUID, symbol string, shares int64) (*models.HistoryEntry, error)

// trade answers 200 with the history entry, or a message when shares is zero
// and nothing was recorded.
func (h *Handler) trade(c *gin.Context, do tradeFunc) {
	userID, ok := h.mustUserID(c)
	if !ok {
		return
	}

	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shares must be a whole number"})
		return
	}
	if req.Shares == nil {
		h.fail(c, errs.ErrInvalidQuantity)
		return
	}

	entry, err := do(c.Request.Context(), userID, req.Symbol, *req.Shares)
	if err != nil {
		h.fail(c, err)
		return
	}

	if entry == nil {
		c.JSON(http.StatusOK, gin.H{"message": "nothing to trade"})
		return
	}

	c.JSON(http.StatusOK, entry)
}

type batchRequest struct {
	Items []models.TradeItem `json:"items"`
}

func (h *Handler) batch(c *gin.Context) {
	userID, ok := h.mustUserID(c)
	if !ok {
		return
	}

	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.tradingService.BatchTrade(c.Request.Context(), userID, req.Items)
	if err != nil {
		status, msg := h.errorStatus(err)
		body := gin.H{"error": msg}
		if result != nil {
			body["failedAt"] = result.FailedAt
			body["applied"] = result.Applied
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, result)
}

type depositRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) deposit(c *gin.Context) {
	userID, ok := h.mustUserID(c)
	if !ok {
		return
	}

	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount format"})
		return
	}

	entry, err := h.tradingService.Deposit(c.Request.Context(), userID, amount)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (h *Handler) history(c *gin.Context) {
	userID, ok := h.mustUserID(c)
	if !ok {
		return
	}

	entries, err := h.tradingService.History(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *Handler) wsConnect(c *gin.Context) {
	userID, ok := h.mustUserID(c)
	if !ok {
		return
	}

	if _, err := h.usersService.GetUser(c.Request.Context(), userID); err != nil {
		h.log.Error("ws: cannot get user", "error", err, "userID", userID)
		h.fail(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", "error", err)
		return
	}

	client := &websocket.Client{
		Manager: h.wsManager,
		Conn:    conn,
		UserID:  userID,
		Send:    make(chan []byte, 256),
	}

	client.Manager.Register(client)

	go client.Writer()
	go client.Reader()
}
