package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/birdielabs/waveportal/internal/invoices"
	"github.com/birdielabs/waveportal/internal/notify"
	"github.com/birdielabs/waveportal/internal/store"
	"github.com/birdielabs/waveportal/internal/sync"
	"github.com/birdielabs/waveportal/internal/tokens"
	"github.com/birdielabs/waveportal/internal/wave"
)

// Handlers is the thin HTTP surface over the sync, invoice and reminder
// services. Rendering, filtering UI and CSV export belong to the
// presentation collaborator; these endpoints only hand it rows and results.
type Handlers struct {
	settings   *tokens.Store
	oauth      *wave.OAuthClient
	client     *wave.Client
	engine     *sync.Engine
	invoiceSvc *invoices.Service
	dispatcher *notify.Dispatcher
	accounts   *store.AccountStore
	states     *stateRegistry
	logger     *zap.Logger
}

// NewHandlers creates the API handler set.
func NewHandlers(settings *tokens.Store, oauth *wave.OAuthClient, client *wave.Client, engine *sync.Engine, invoiceSvc *invoices.Service, dispatcher *notify.Dispatcher, accounts *store.AccountStore, logger *zap.Logger) *Handlers {
	return &Handlers{
		settings:   settings,
		oauth:      oauth,
		client:     client,
		engine:     engine,
		invoiceSvc: invoiceSvc,
		dispatcher: dispatcher,
		accounts:   accounts,
		states:     newStateRegistry(),
		logger:     logger,
	}
}

// SettingsRequest carries the OAuth client registration.
type SettingsRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
	RedirectURI  string `json:"redirect_uri" binding:"required,url"`
}

// SaveSettings stores the admin-entered client registration.
func (h *Handlers) SaveSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	if err := h.settings.SaveClient(req.ClientID, req.ClientSecret, req.RedirectURI); err != nil {
		h.logger.Error("failed to save wave settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Connect returns the authorization URL the admin should visit, with a
// fresh anti-forgery state value.
func (h *Handlers) Connect(c *gin.Context) {
	cred, err := h.settings.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	if cred.ClientID == "" || cred.RedirectURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "save client credentials before connecting"})
		return
	}

	state := h.states.Issue()
	c.JSON(http.StatusOK, gin.H{
		"authorization_url": h.oauth.AuthCodeURL(cred.ClientID, cred.RedirectURI, state),
		"state":             state,
	})
}

// Callback handles the OAuth redirect. An absent or unknown state value is
// fatal for this request. On success the token pair is persisted and the
// first visible business is captured as the connected business.
func (h *Handlers) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")

	if code == "" || state == "" || !h.states.Consume(state) {
		h.logger.Warn("oauth callback rejected",
			zap.Bool("has_code", code != ""), zap.Bool("has_state", state != ""))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OAuth state or missing parameters"})
		return
	}

	cred, err := h.settings.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}

	pair, err := h.oauth.ExchangeCode(c.Request.Context(), cred.ClientID, cred.ClientSecret, cred.RedirectURI, code)
	if err != nil {
		h.logger.Error("code exchange failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to exchange authorization code"})
		return
	}

	if err := h.settings.SaveTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist tokens"})
		return
	}

	h.captureBusiness(c, pair.AccessToken)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "wave connection established"})
}

func (h *Handlers) captureBusiness(c *gin.Context, accessToken string) {
	businesses, err := h.client.Businesses(c.Request.Context(), accessToken)
	if err != nil || len(businesses) == 0 {
		h.logger.Warn("no business captured during callback", zap.Error(err))
		return
	}
	first := businesses[0]
	if err := h.settings.SaveBusiness(first.ID, first.Name); err != nil {
		h.logger.Error("failed to persist connected business", zap.Error(err))
	}
}

// Disconnect clears the stored credential pair and connection settings.
func (h *Handlers) Disconnect(c *gin.Context) {
	if err := h.settings.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "disconnected from wave"})
}

// TriggerSync runs one reconciliation pass against the connected business.
func (h *Handlers) TriggerSync(c *gin.Context) {
	_, businessName, err := h.settings.Business()
	if err != nil || businessName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no connected business"})
		return
	}

	result, err := h.engine.Sync(c.Request.Context(), businessName)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, wave.ErrNoCredentials) || errors.Is(err, wave.ErrRefreshFailed) {
			status = http.StatusConflict
		}
		h.logger.Error("manual sync failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "sync failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"summary": result.Summary(),
		"report":  result.Report(),
		"counts": gin.H{
			"added":   result.Added,
			"updated": result.Updated,
			"skipped": result.Skipped,
			"deleted": result.Deleted,
			"failed":  result.Failed,
		},
	})
}

// RemoveSyncedAccounts deletes every account the sync engine manages.
func (h *Handlers) RemoveSyncedAccounts(c *gin.Context) {
	removed, err := h.engine.RemoveAllSyncedAccounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed})
}

// ReminderRequest selects a recipient and an inclusive ISO date window.
type ReminderRequest struct {
	Email     string `json:"email" binding:"required,email"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

// SendReminders composes and sends a reminder digest for one recipient.
func (h *Handlers) SendReminders(c *gin.Context) {
	var req ReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	account, err := h.accounts.FindByEmail(req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no local account for " + req.Email})
		return
	}

	if err := h.dispatcher.SendReminders(c.Request.Context(), account, req.StartDate, req.EndDate); err != nil {
		h.logger.Error("reminder send failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reminder send failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// InvoiceRow is one row handed to the presentation collaborator.
type InvoiceRow struct {
	Date    string `json:"date"`
	DueDate string `json:"due_date"`
	Status  string `json:"status"`
	Amount  string `json:"amount"`
	PDFURL  string `json:"pdf_url"`
}

// PortalInvoices returns the calling user's invoice rows plus the
// outstanding balance. The balance is summed in minor units and converted
// once for display.
func (h *Handlers) PortalInvoices(c *gin.Context) {
	email := c.GetHeader("X-Portal-Email")
	if email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-Portal-Email header required"})
		return
	}
	filter := invoices.ParseFilter(c.Query("status"))

	_, businessName, err := h.settings.Business()
	if err != nil || businessName == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no connected business"})
		return
	}

	businessID, customerID, found, err := h.invoiceSvc.ResolveCustomer(c.Request.Context(), businessName, email)
	if err != nil {
		h.logger.Error("customer resolution failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to resolve customer"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no matching wave customer for your account"})
		return
	}

	list, err := h.invoiceSvc.List(c.Request.Context(), businessID, customerID, filter)
	if err != nil {
		h.logger.Error("invoice listing failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch invoices"})
		return
	}

	rows := make([]InvoiceRow, 0, len(list))
	for _, inv := range list {
		rows = append(rows, InvoiceRow{
			Date:    inv.CreatedDate(),
			DueDate: inv.DueDate,
			Status:  inv.Status,
			Amount:  wave.FormatCents(inv.AmountCents),
			PDFURL:  inv.PDFURL,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"invoices":            rows,
		"outstanding_balance": wave.FormatCents(invoices.OutstandingCents(list)),
	})
}

// RegisterRoutes attaches all endpoints to the router.
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	router.GET("/oauth-callback", h.Callback)

	admin := router.Group("/admin/wave")
	{
		admin.POST("/settings", h.SaveSettings)
		admin.GET("/connect", h.Connect)
		admin.POST("/disconnect", h.Disconnect)
		admin.POST("/sync", h.TriggerSync)
		admin.POST("/cleanup", h.RemoveSyncedAccounts)
		admin.POST("/reminders", h.SendReminders)
	}

	portal := router.Group("/portal")
	{
		portal.GET("/invoices", h.PortalInvoices)
	}
}
