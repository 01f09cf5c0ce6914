package invoices

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/birdielabs/waveportal/internal/models"
	"github.com/birdielabs/waveportal/internal/tokens"
	"github.com/birdielabs/waveportal/internal/wave"
)

// Filter selects which invoices a listing returns.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterUnpaid Filter = "unpaid"
	FilterPaid   Filter = "paid"
)

// ParseFilter maps a user-supplied value onto a filter, defaulting to all.
func ParseFilter(s string) Filter {
	switch Filter(s) {
	case FilterUnpaid:
		return FilterUnpaid
	case FilterPaid:
		return FilterPaid
	default:
		return FilterAll
	}
}

// unpaidStatuses are the statuses the portal's unpaid filter shows. Voided
// invoices are neither unpaid nor paid for filtering purposes.
var unpaidStatuses = map[string]bool{
	wave.StatusUnsent:  true,
	wave.StatusViewed:  true,
	wave.StatusOverdue: true,
}

// Service fetches and filters invoice lists for a customer/business pair.
// Read-only; used by both the portal view and the reminder dispatcher.
type Service struct {
	tokens *tokens.Manager
	client *wave.Client
	logger *zap.Logger
}

// NewService creates an invoice query service.
func NewService(tokens *tokens.Manager, client *wave.Client, logger *zap.Logger) *Service {
	return &Service{tokens: tokens, client: client, logger: logger}
}

// List returns the business's invoices belonging to customerID, narrowed by
// filter, in the order the remote returns them. Rows for other customers are
// dropped even if the remote response includes them.
func (s *Service) List(ctx context.Context, businessID, customerID string, filter Filter) ([]wave.Invoice, error) {
	token, err := s.tokens.ValidToken(ctx)
	if err != nil {
		return nil, err
	}

	all, err := s.client.BusinessInvoices(ctx, token, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invoices: %w", err)
	}

	var out []wave.Invoice
	for _, inv := range all {
		if inv.CustomerID != customerID {
			continue
		}
		switch filter {
		case FilterUnpaid:
			if !unpaidStatuses[inv.Status] {
				continue
			}
		case FilterPaid:
			if inv.Status != wave.StatusPaid {
				continue
			}
		}
		out = append(out, inv)
	}
	return out, nil
}

// ResolveCustomer finds the connected business by exact name and the
// customer within it whose normalized email matches. found is false when
// either half is missing; that is a reported condition, not an error.
func (s *Service) ResolveCustomer(ctx context.Context, businessName, email string) (businessID, customerID string, found bool, err error) {
	token, err := s.tokens.ValidToken(ctx)
	if err != nil {
		return "", "", false, err
	}

	businesses, err := s.client.BusinessCustomers(ctx, token)
	if err != nil {
		return "", "", false, fmt.Errorf("failed to fetch customers: %w", err)
	}

	business := wave.FindBusinessByName(businesses, businessName)
	if business == nil {
		return "", "", false, nil
	}

	want := models.NormalizeEmail(email)
	for _, c := range business.Customers {
		if models.NormalizeEmail(c.Email) == want {
			return business.ID, c.ID, true, nil
		}
	}
	return "", "", false, nil
}

// OutstandingCents sums, in integer minor units, the invoices still counting
// toward the balance (status outside paid/voided). Conversion to a display
// value happens once, at the caller.
func OutstandingCents(invoices []wave.Invoice) int64 {
	var total int64
	for _, inv := range invoices {
		if inv.IsUnpaid() {
			total += inv.AmountCents
		}
	}
	return total
}
