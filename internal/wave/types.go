package wave

import (
	"fmt"
	"strings"
)

// Business represents a Wave business (the tenant scope for customers and
// invoices).
type Business struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Customers []Customer `json:"customers,omitempty"`
}

// Customer represents a Wave customer. Sourced fresh on every sync and
// never persisted locally.
type Customer struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Invoice statuses as returned by Wave (lowercased on decode).
const (
	StatusUnsent  = "unsent"
	StatusViewed  = "viewed"
	StatusOverdue = "overdue"
	StatusPaid    = "paid"
	StatusVoided  = "voided"
	StatusUnpaid  = "unpaid"
)

// Invoice represents a Wave invoice. AmountCents carries the total in
// integer minor units; aggregation stays in cents and converts to a display
// value exactly once.
type Invoice struct {
	ID          string `json:"id"`
	CreatedAt   string `json:"created_at"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
	PDFURL      string `json:"pdf_url"`
	CustomerID  string `json:"customer_id"`
	AmountCents int64  `json:"amount_cents"`
}

// IsUnpaid reports whether the invoice still counts toward the customer's
// outstanding balance.
func (i Invoice) IsUnpaid() bool {
	return i.Status != StatusPaid && i.Status != StatusVoided
}

// CreatedDate returns the creation timestamp truncated to YYYY-MM-DD, the
// form used for inclusive date-window comparisons.
func (i Invoice) CreatedDate() string {
	if len(i.CreatedAt) >= 10 {
		return i.CreatedAt[:10]
	}
	return i.CreatedAt
}

// FormatCents renders an integer minor-unit amount as a decimal string.
// This is the single point where cents become a display value.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// TokenPair is the credential pair returned by the token endpoint. The
// refresh token is empty when the provider does not re-issue one.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FindBusinessByName is the single point where the connected business is
// matched: exact name equality, first match wins. Wave does not document
// duplicate business names; if they occur, later ones are ignored.
func FindBusinessByName(businesses []Business, name string) *Business {
	for i := range businesses {
		if businesses[i].Name == name {
			return &businesses[i]
		}
	}
	return nil
}
