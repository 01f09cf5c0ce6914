package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/birdielabs/waveportal/internal/config"
	"github.com/birdielabs/waveportal/internal/models"
	"github.com/birdielabs/waveportal/internal/notify"
	"github.com/birdielabs/waveportal/internal/store"
	"github.com/birdielabs/waveportal/internal/tokens"
	"github.com/birdielabs/waveportal/internal/wave"
)

// Engine reconciles the remote customer list against local accounts. Each
// run converges local state (create/update/delete) and drives the
// per-account notification step. Single-record failures are absorbed into
// the result; only missing credentials or a failed fetch abort a run.
type Engine struct {
	tokens   *tokens.Manager
	client   *wave.Client
	accounts *store.AccountStore
	notifier *notify.Notifier
	logger   *zap.Logger

	sendWelcome bool
}

// NewEngine creates a reconciliation engine.
func NewEngine(cfg *config.Config, tokenMgr *tokens.Manager, client *wave.Client, accounts *store.AccountStore, notifier *notify.Notifier, logger *zap.Logger) *Engine {
	return &Engine{
		tokens:      tokenMgr,
		client:      client,
		accounts:    accounts,
		notifier:    notifier,
		logger:      logger,
		sendWelcome: cfg.Sync.SendWelcome,
	}
}

// Sync runs one reconciliation pass against the business matching
// businessName exactly. A missing business or empty customer list is a
// reported condition, not an error; the result carries a note and zero
// counts.
func (e *Engine) Sync(ctx context.Context, businessName string) (*Result, error) {
	token, err := e.tokens.ValidToken(ctx)
	if err != nil {
		return nil, err
	}

	businesses, err := e.client.BusinessCustomers(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wave customers: %w", err)
	}

	result := &Result{}

	business := wave.FindBusinessByName(businesses, businessName)
	if business == nil || len(business.Customers) == 0 {
		result.add("No matching business or customers found for %s.", businessName)
		e.logger.Warn("sync found no business or customers",
			zap.String("business_name", businessName))
		return result, nil
	}

	remoteEmails := make(map[string]bool)

	for _, customer := range business.Customers {
		email := strings.TrimSpace(customer.Email)
		if email == "" {
			continue
		}
		if _, err := mail.ParseAddress(email); err != nil {
			e.logger.Warn("skipping customer with malformed email",
				zap.String("customer_id", customer.ID),
				zap.String("email", email))
			continue
		}
		remoteEmails[models.NormalizeEmail(email)] = true

		e.reconcileCustomer(ctx, business.ID, customer, email, result)
	}

	e.reconcileDeletes(remoteEmails, result)

	e.logger.Info("sync completed",
		zap.String("business_name", businessName),
		zap.Int("added", result.Added),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("deleted", result.Deleted),
		zap.Int("failed", result.Failed))

	return result, nil
}

// reconcileCustomer converges a single remote customer onto the local
// directory. Any failure is counted and recorded; the run continues.
func (e *Engine) reconcileCustomer(ctx context.Context, businessID string, customer wave.Customer, email string, result *Result) {
	existing, err := e.accounts.FindByEmail(email)
	if err != nil {
		result.Failed++
		result.add("Failed: %s (%v)", email, err)
		return
	}

	if existing != nil {
		// Accounts outside the synced role were not created by this
		// system and are never mutated.
		if !existing.IsSynced() {
			result.Skipped++
			result.add("Skipped: %s (unmanaged role)", email)
			return
		}

		if existing.FirstName != customer.FirstName || existing.LastName != customer.LastName {
			existing.FirstName = customer.FirstName
			existing.LastName = customer.LastName
			existing.DisplayName = customer.FirstName + " " + customer.LastName
			if err := e.accounts.Update(existing); err != nil {
				result.Failed++
				result.add("Failed: %s (%v)", email, err)
				return
			}
			result.Updated++
			result.add("Updated: %s", email)
		} else {
			result.Skipped++
			result.add("Skipped: %s (already exists)", email)
		}

		e.notify(ctx, existing, businessID, customer.ID)
		return
	}

	account, err := e.createAccount(customer, email)
	if err != nil {
		result.Failed++
		result.add("Failed: %s (%v)", email, err)
		e.logger.Error("failed to create account",
			zap.String("email", email), zap.Error(err))
		return
	}

	if e.sendWelcome {
		if err := e.notifier.SendWelcome(ctx, account); err != nil {
			e.logger.Warn("welcome mail failed",
				zap.String("email", email), zap.Error(err))
		}
	}

	result.Added++
	result.add("Created user: %s", email)

	e.notify(ctx, account, businessID, customer.ID)
}

// createAccount builds a synced account with a collision-safe handle and a
// random credential.
func (e *Engine) createAccount(customer wave.Customer, email string) (*models.Account, error) {
	username := handleFor(customer.FirstName, customer.LastName, email)
	taken, err := e.accounts.UsernameExists(username)
	if err != nil {
		return nil, err
	}
	if taken {
		username = username + "_" + uuid.NewString()[:8]
	}

	secret := sha256.Sum256([]byte(uuid.NewString()))

	account := &models.Account{
		Username:     username,
		Email:        email,
		FirstName:    customer.FirstName,
		LastName:     customer.LastName,
		DisplayName:  customer.FirstName + " " + customer.LastName,
		Role:         models.RoleCustomer,
		PasswordHash: hex.EncodeToString(secret[:]),
	}
	if err := e.accounts.Create(account); err != nil {
		return nil, err
	}
	return account, nil
}

// reconcileDeletes removes synced accounts whose email is absent from the
// latest remote set, in existing-account enumeration order. Accounts outside
// the synced role are never deleted regardless of email match.
func (e *Engine) reconcileDeletes(remoteEmails map[string]bool, result *Result) {
	existing, err := e.accounts.ListByRole(models.RoleCustomer)
	if err != nil {
		result.Failed++
		result.add("Failed: could not enumerate synced accounts (%v)", err)
		return
	}

	for i := range existing {
		account := &existing[i]
		if remoteEmails[models.NormalizeEmail(account.Email)] {
			continue
		}
		if err := e.accounts.Delete(account); err != nil {
			result.Failed++
			result.add("Failed: %s (%v)", account.Email, err)
			continue
		}
		result.Deleted++
		result.add("Deleted: %s", account.Email)
	}
}

// RemoveAllSyncedAccounts deletes every account the engine manages. Admin
// cleanup operation; accounts outside the synced role are untouched.
func (e *Engine) RemoveAllSyncedAccounts() (int, error) {
	existing, err := e.accounts.ListByRole(models.RoleCustomer)
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := range existing {
		if err := e.accounts.Delete(&existing[i]); err != nil {
			return removed, err
		}
		removed++
	}

	e.logger.Info("removed all synced accounts", zap.Int("removed", removed))
	return removed, nil
}

func (e *Engine) notify(ctx context.Context, account *models.Account, businessID, customerID string) {
	if err := e.notifier.NotifyNewInvoices(ctx, account, businessID, customerID); err != nil {
		e.logger.Warn("invoice notification failed",
			zap.String("email", account.Email), zap.Error(err))
	}
}

// handleFor derives the natural account handle from the customer's name,
// falling back to the email local part when the name is empty.
func handleFor(first, last, email string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(first + last) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		local := email
		if at := strings.IndexByte(email, '@'); at > 0 {
			local = email[:at]
		}
		return strings.ToLower(local)
	}
	return b.String()
}
