package wave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/birdielabs/waveportal/internal/config"
)

// authExpiredMessage is the exact GraphQL error Wave returns when the access
// token has expired. It is matched case-insensitively and is the only signal
// that triggers a refresh.
const authExpiredMessage = "invalid request, authentication expired."

// ProbeQuery is the cheapest authenticated query, used to check token
// freshness before real work.
const ProbeQuery = `{ viewer { id } }`

// Client issues authenticated queries against the Wave GraphQL endpoint.
// It never caches results and never interprets GraphQL-level errors itself;
// callers decide what an error entry means at their call site.
type Client struct {
	httpClient *http.Client
	graphqlURL string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// QueryResponse is the raw GraphQL envelope.
type QueryResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []QueryError    `json:"errors"`
}

// QueryError is a single GraphQL error entry.
type QueryError struct {
	Message string `json:"message"`
}

// NewClient creates a Wave GraphQL client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		graphqlURL: cfg.Wave.GraphQLURL,
		// Wave enforces provider-side rate limits; stay under them.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		logger:  logger,
	}
}

// Query posts a GraphQL query with the given bearer token. Transport
// failures are returned as errors; GraphQL errors come back inside the
// response, independent of HTTP status.
func (c *Client) Query(ctx context.Context, accessToken, query string, variables map[string]interface{}) (*QueryResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wave request failed: %w", err)
	}
	defer resp.Body.Close()

	var out QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode wave response (status %d): %w", resp.StatusCode, err)
	}

	if len(out.Errors) > 0 {
		c.logger.Debug("wave query returned errors",
			zap.Int("error_count", len(out.Errors)),
			zap.String("first_message", out.Errors[0].Message))
	}

	return &out, nil
}

// IsAuthExpired reports whether the response carries Wave's expired-auth
// error. Any other error entry (not found, bad query) does not count.
func IsAuthExpired(resp *QueryResponse) bool {
	if resp == nil {
		return false
	}
	for _, e := range resp.Errors {
		if strings.EqualFold(strings.TrimSpace(e.Message), authExpiredMessage) {
			return true
		}
	}
	return false
}

// firstError flattens a GraphQL error list into a single error value.
func firstError(resp *QueryResponse) error {
	if len(resp.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("wave query failed: %s", resp.Errors[0].Message)
}

// Wire-shape structs for the three query forms the service uses. Responses
// are decoded at this boundary so missing keys fail fast as
// ErrMalformedResponse instead of surfacing deep in business logic.

type edgeList[T any] struct {
	Edges []struct {
		Node T `json:"node"`
	} `json:"edges"`
}

type businessNode struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Customers *edgeList[customerNode] `json:"customers"`
}

type customerNode struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type invoiceNode struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
	DueDate   string `json:"dueDate"`
	Status    string `json:"status"`
	PDFURL    string `json:"pdfUrl"`
	Customer  struct {
		ID string `json:"id"`
	} `json:"customer"`
	Total struct {
		Raw int64 `json:"raw"`
	} `json:"total"`
}

const businessesQuery = `
	query {
		businesses {
			edges {
				node {
					id
					name
				}
			}
		}
	}`

const businessCustomersQuery = `
	query {
		businesses {
			edges {
				node {
					id
					name
					customers {
						edges {
							node {
								id
								email
								firstName
								lastName
							}
						}
					}
				}
			}
		}
	}`

const businessInvoicesQuery = `
	query($businessId: ID!) {
		business(id: $businessId) {
			invoices {
				edges {
					node {
						id
						createdAt
						dueDate
						status
						pdfUrl
						customer { id }
						total { raw }
					}
				}
			}
		}
	}`

// Businesses returns the businesses visible to the token.
func (c *Client) Businesses(ctx context.Context, accessToken string) ([]Business, error) {
	resp, err := c.Query(ctx, accessToken, businessesQuery, nil)
	if err != nil {
		return nil, err
	}
	if err := firstError(resp); err != nil {
		return nil, err
	}

	var data struct {
		Businesses *edgeList[businessNode] `json:"businesses"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.Businesses == nil {
		return nil, fmt.Errorf("%w: business list", ErrMalformedResponse)
	}

	out := make([]Business, 0, len(data.Businesses.Edges))
	for _, e := range data.Businesses.Edges {
		out = append(out, Business{ID: e.Node.ID, Name: e.Node.Name})
	}
	return out, nil
}

// BusinessCustomers returns the businesses together with their customer
// lists.
func (c *Client) BusinessCustomers(ctx context.Context, accessToken string) ([]Business, error) {
	resp, err := c.Query(ctx, accessToken, businessCustomersQuery, nil)
	if err != nil {
		return nil, err
	}
	if err := firstError(resp); err != nil {
		return nil, err
	}

	var data struct {
		Businesses *edgeList[businessNode] `json:"businesses"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.Businesses == nil {
		return nil, fmt.Errorf("%w: customer list", ErrMalformedResponse)
	}

	out := make([]Business, 0, len(data.Businesses.Edges))
	for _, e := range data.Businesses.Edges {
		b := Business{ID: e.Node.ID, Name: e.Node.Name}
		if e.Node.Customers != nil {
			for _, ce := range e.Node.Customers.Edges {
				b.Customers = append(b.Customers, Customer{
					ID:        ce.Node.ID,
					Email:     ce.Node.Email,
					FirstName: ce.Node.FirstName,
					LastName:  ce.Node.LastName,
				})
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// BusinessInvoices returns all invoices for a business. Filtering to a
// customer happens at the caller; the decode here is the trust boundary.
func (c *Client) BusinessInvoices(ctx context.Context, accessToken, businessID string) ([]Invoice, error) {
	resp, err := c.Query(ctx, accessToken, businessInvoicesQuery, map[string]interface{}{
		"businessId": businessID,
	})
	if err != nil {
		return nil, err
	}
	if err := firstError(resp); err != nil {
		return nil, err
	}

	var data struct {
		Business *struct {
			Invoices *edgeList[invoiceNode] `json:"invoices"`
		} `json:"business"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.Business == nil || data.Business.Invoices == nil {
		return nil, fmt.Errorf("%w: invoice list", ErrMalformedResponse)
	}

	out := make([]Invoice, 0, len(data.Business.Invoices.Edges))
	for _, e := range data.Business.Invoices.Edges {
		out = append(out, Invoice{
			ID:          e.Node.ID,
			CreatedAt:   e.Node.CreatedAt,
			DueDate:     e.Node.DueDate,
			Status:      normalizeStatus(e.Node.Status),
			PDFURL:      e.Node.PDFURL,
			CustomerID:  e.Node.Customer.ID,
			AmountCents: e.Node.Total.Raw,
		})
	}
	return out, nil
}
