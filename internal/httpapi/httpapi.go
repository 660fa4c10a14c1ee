package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"opentill/backend/internal/domain"
	"opentill/backend/internal/reconcile"
	"opentill/backend/internal/service"
	"opentill/backend/internal/store"
)

const sessionKey = "session"

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	logger        *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{service: svc, auth: auth, allowedOrigin: allowedOrigin, logger: logger}
}

// Router assembles the HTTP surface. Everything except login and health
// requires a resolvable session token.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLog(), a.cors())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/auth/login", a.handleLogin)

	authed := r.Group("/", a.requireSession())
	{
		authed.POST("/transactions", a.handleCreateTransaction)
		authed.GET("/transactions/saved", a.handleFetchSaved)
		authed.GET("/transactions/ref/:ref", a.handleFetchByRef)
		authed.GET("/transactions/product/:sku", a.handleFetchByProductSKU)
		authed.GET("/transactions/deliverable/:storeID", a.handleDeliverableOrders)
		authed.POST("/transactions/generate", a.handleGenerateTransaction)
		authed.GET("/transactions/:id", a.handleFetchTransaction)
		authed.PUT("/transactions/:id", a.handleUpdateTransaction)
		authed.DELETE("/transactions/:id", a.handleDeleteTransaction)
		authed.POST("/transactions/:id/orders/:ref/status", a.handleUpdateOrderStatus)
		authed.POST("/transactions/:id/orders/:ref/products/:productID/instances/:instanceID/status", a.handleUpdateLineItemStatus)

		authed.GET("/promotions", a.handleListPromotions)
		authed.POST("/promotions", a.handleCreatePromotion)
		authed.PUT("/promotions/:id", a.handleUpdatePromotion)
		authed.POST("/promotions/generate", a.handleGeneratePromotions)
		authed.POST("/promotions/evaluate", a.handleEvaluateCart)
	}

	return r
}

func (a *API) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func (a *API) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", a.allowedOrigin)
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (a *API) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		sess, err := a.auth.ResolveSession(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) domain.Session {
	sess, _ := c.Get(sessionKey)
	resolved, _ := sess.(domain.Session)
	return resolved
}

func (a *API) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleCreateTransaction(c *gin.Context) {
	var input domain.TransactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := a.service.CreateTransaction(c.Request.Context(), input, sessionFrom(c))

	var recErr *reconcile.Error
	if errors.As(err, &recErr) {
		// The transaction is durable; only stock adjustment is incomplete.
		c.JSON(http.StatusCreated, gin.H{
			"transaction":   tx,
			"stock_warning": recErr.Error(),
		})
		return
	}
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

func (a *API) handleUpdateTransaction(c *gin.Context) {
	var input domain.TransactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := a.service.UpdateTransaction(c.Request.Context(), input, c.Param("id"), sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (a *API) handleDeleteTransaction(c *gin.Context) {
	if err := a.service.DeleteTransaction(c.Request.Context(), c.Param("id"), sessionFrom(c)); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleFetchTransaction(c *gin.Context) {
	tx, err := a.service.FetchTransaction(c.Request.Context(), c.Param("id"), sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (a *API) handleFetchByRef(c *gin.Context) {
	txs, err := a.service.FetchTransactionsByRef(c.Request.Context(), c.Param("ref"), sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (a *API) handleFetchByProductSKU(c *gin.Context) {
	txs, err := a.service.FetchTransactionsByProductSKU(c.Request.Context(), c.Param("sku"), sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (a *API) handleFetchSaved(c *gin.Context) {
	txs, err := a.service.FetchSavedTransactions(c.Request.Context(), sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (a *API) handleDeliverableOrders(c *gin.Context) {
	orders, err := a.service.DeliverableOrders(c.Request.Context(), c.Param("storeID"), sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (a *API) handleGenerateTransaction(c *gin.Context) {
	var req struct {
		Customer string `json:"customer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := a.service.GenerateTransaction(c.Request.Context(), req.Customer, sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

func (a *API) handleUpdateOrderStatus(c *gin.Context) {
	var status domain.OrderStatus
	if err := c.ShouldBindJSON(&status); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := a.service.UpdateOrderStatus(c.Request.Context(), c.Param("id"), c.Param("ref"), status, sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (a *API) handleUpdateLineItemStatus(c *gin.Context) {
	var req struct {
		Status domain.PickStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := a.service.UpdateLineItemStatus(
		c.Request.Context(),
		c.Param("id"),
		c.Param("ref"),
		c.Param("productID"),
		c.Param("instanceID"),
		req.Status,
		sessionFrom(c),
	)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (a *API) handleListPromotions(c *gin.Context) {
	promos, err := a.service.ListPromotions(c.Request.Context(), sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"promotions": promos})
}

func (a *API) handleCreatePromotion(c *gin.Context) {
	var input domain.PromotionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	promo, err := a.service.CreatePromotion(c.Request.Context(), input, sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"promotion": promo})
}

func (a *API) handleUpdatePromotion(c *gin.Context) {
	var input domain.PromotionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	promo, err := a.service.UpdatePromotion(c.Request.Context(), input, c.Param("id"), sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"promotion": promo})
}

func (a *API) handleGeneratePromotions(c *gin.Context) {
	promos, err := a.service.GeneratePromotions(c.Request.Context(), sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"promotions": promos})
}

func (a *API) handleEvaluateCart(c *gin.Context) {
	var req struct {
		Cart []domain.ProductPurchase `json:"cart"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eval, err := a.service.EvaluateCart(c.Request.Context(), req.Cart, sessionFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (a *API) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
