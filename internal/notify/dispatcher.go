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
	"github.com/birdielabs/waveportal/internal/tokens"
	"github.com/birdielabs/waveportal/internal/wave"
)

// Dispatcher composes and sends reminder digests for unpaid invoices in a
// date range. Every attempt, including a no-match outcome, is logged for
// operability.
type Dispatcher struct {
	invoices *invoices.Service
	settings *tokens.Store
	mailer   Mailer
	tracer   trace.Tracer
	logger   *zap.Logger

	portalURL string
}

// NewDispatcher creates a reminder dispatcher.
func NewDispatcher(cfg *config.Config, invoiceSvc *invoices.Service, settings *tokens.Store, mailer Mailer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		invoices:  invoiceSvc,
		settings:  settings,
		mailer:    mailer,
		tracer:    otel.Tracer("reminder-dispatcher"),
		logger:    logger,
		portalURL: cfg.Email.PortalURL,
	}
}

// SendReminders selects the account's unpaid invoices created inside the
// inclusive [startDate, endDate] window (ISO dates, compared
// lexicographically) and sends one digest listing all of them. No matches
// means no message.
func (d *Dispatcher) SendReminders(ctx context.Context, account *models.Account, startDate, endDate string) error {
	ctx, span := d.tracer.Start(ctx, "send_reminders")
	defer span.End()
	span.SetAttributes(
		attribute.String("email", account.Email),
		attribute.String("start_date", startDate),
		attribute.String("end_date", endDate),
	)

	d.logger.Info("reminder run started",
		zap.String("email", account.Email),
		zap.String("from", startDate),
		zap.String("to", endDate))

	_, businessName, err := d.settings.Business()
	if err != nil {
		return err
	}

	businessID, customerID, found, err := d.invoices.ResolveCustomer(ctx, businessName, account.Email)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to resolve customer for reminders: %w", err)
	}
	if !found {
		d.logger.Warn("no matching wave customer for reminder recipient",
			zap.String("email", account.Email))
		return nil
	}

	all, err := d.invoices.List(ctx, businessID, customerID, invoices.FilterAll)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to fetch invoices for reminders: %w", err)
	}

	var matches []wave.Invoice
	for _, inv := range all {
		created := inv.CreatedDate()
		if inv.Status != wave.StatusPaid && created >= startDate && created <= endDate {
			matches = append(matches, inv)
		}
	}

	d.logger.Info("reminder selection complete",
		zap.String("email", account.Email),
		zap.Int("matching_invoices", len(matches)))

	if len(matches) == 0 {
		return nil
	}

	result, err := d.mailer.Send(ctx, account.Email, subjectReminder,
		reminderBody(matches, startDate, endDate, d.portalURL))
	if err != nil {
		span.RecordError(err)
		d.logger.Error("reminder mail not sent",
			zap.String("email", account.Email), zap.Error(err))
		return fmt.Errorf("failed to send reminder: %w", err)
	}

	d.logger.Info("reminder mail sent",
		zap.String("email", account.Email),
		zap.String("message_id", result.MessageID))

	return nil
}
