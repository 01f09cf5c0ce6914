package notify

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/birdielabs/waveportal/internal/config"
	"github.com/birdielabs/waveportal/internal/invoices"
	"github.com/birdielabs/waveportal/internal/models"
	"github.com/birdielabs/waveportal/internal/store"
)

// Notifier sends at-most-once-per-invoice alerts about new unpaid invoices.
// The dedup ledger lives on the account and survives restarts.
type Notifier struct {
	invoices *invoices.Service
	accounts *store.AccountStore
	mailer   Mailer
	tracer   trace.Tracer
	logger   *zap.Logger

	portalURL string
}

// NewNotifier creates a notifier.
func NewNotifier(cfg *config.Config, invoiceSvc *invoices.Service, accounts *store.AccountStore, mailer Mailer, logger *zap.Logger) *Notifier {
	return &Notifier{
		invoices:  invoiceSvc,
		accounts:  accounts,
		mailer:    mailer,
		tracer:    otel.Tracer("notifier"),
		logger:    logger,
		portalURL: cfg.Email.PortalURL,
	}
}

// NotifyNewInvoices alerts the account about unpaid invoices it has not been
// told about yet. At most one message is sent per call regardless of how
// many invoices are new, and the ledger is extended only after a successful
// send. Re-running with no new invoices sends nothing and leaves the ledger
// untouched.
func (n *Notifier) NotifyNewInvoices(ctx context.Context, account *models.Account, businessID, customerID string) error {
	ctx, span := n.tracer.Start(ctx, "notify_new_invoices")
	defer span.End()
	span.SetAttributes(
		attribute.String("account_id", account.ID.String()),
		attribute.String("customer_id", customerID),
	)

	unpaid, err := n.invoices.List(ctx, businessID, customerID, invoices.FilterAll)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to fetch invoices for notification: %w", err)
	}

	var newIDs []string
	for _, inv := range unpaid {
		if !inv.IsUnpaid() {
			continue
		}
		if !account.HasNotified(inv.ID) {
			newIDs = append(newIDs, inv.ID)
		}
	}

	if len(newIDs) == 0 {
		return nil
	}

	if _, err := n.mailer.Send(ctx, account.Email, subjectNewAlert, newInvoiceBody(n.portalURL)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to send invoice alert: %w", err)
	}

	account.NotifiedInvoiceIDs = append(account.NotifiedInvoiceIDs, newIDs...)
	if err := n.accounts.SaveNotifiedInvoices(account); err != nil {
		span.RecordError(err)
		return err
	}

	n.logger.Info("sent new invoice alert",
		zap.String("email", account.Email),
		zap.Int("new_invoices", len(newIDs)))

	return nil
}

// SendWelcome sends the account-created message to a newly synced user.
func (n *Notifier) SendWelcome(ctx context.Context, account *models.Account) error {
	ctx, span := n.tracer.Start(ctx, "send_welcome")
	defer span.End()

	_, err := n.mailer.Send(ctx, account.Email, subjectWelcome,
		welcomeBody(account.FirstName, account.Email, n.portalURL))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to send welcome mail: %w", err)
	}

	n.logger.Info("sent welcome mail", zap.String("email", account.Email))
	return nil
}
