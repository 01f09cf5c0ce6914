package invoices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/birdielabs/waveportal/internal/config"
	"github.com/birdielabs/waveportal/internal/database"
	"github.com/birdielabs/waveportal/internal/tokens"
	"github.com/birdielabs/waveportal/internal/wave"
)

// graphqlFixture routes incoming queries to canned responses by query shape:
// the probe, the customer listing, and the per-business invoice listing.
type graphqlFixture struct {
	customersBody string
	invoicesBody  string
}

func (f *graphqlFixture) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "viewer"):
			fmt.Fprint(w, `{"data":{"viewer":{"id":"u1"}}}`)
		case strings.Contains(req.Query, "customers"):
			fmt.Fprint(w, f.customersBody)
		case strings.Contains(req.Query, "business(id"):
			fmt.Fprint(w, f.invoicesBody)
		default:
			t.Fatalf("unexpected query: %s", req.Query)
		}
	})
}

func newTestService(t *testing.T, f *graphqlFixture) *Service {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Wave.GraphQLURL = srv.URL
	cfg.Wave.TokenURL = srv.URL + "/token"

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	store := tokens.NewStore(db)
	require.NoError(t, store.SaveClient("cid", "secret", "https://cb"))
	require.NoError(t, store.SaveTokens("at", "rt"))

	logger := zap.NewNop()
	client := wave.NewClient(cfg, logger)
	manager := tokens.NewManager(store, wave.NewOAuthClient(cfg, logger), client, logger)
	return NewService(manager, client, logger)
}

const invoiceFixture = `{"data":{"business":{"invoices":{"edges":[
	{"node":{"id":"inv-1","createdAt":"2024-01-05T00:00:00Z","dueDate":"2024-02-05","status":"UNSENT","pdfUrl":"https://pdf/1","customer":{"id":"cust-1"},"total":{"raw":1000}}},
	{"node":{"id":"inv-2","createdAt":"2024-01-10T00:00:00Z","dueDate":"2024-02-10","status":"OVERDUE","pdfUrl":"https://pdf/2","customer":{"id":"cust-1"},"total":{"raw":2550}}},
	{"node":{"id":"inv-3","createdAt":"2024-01-15T00:00:00Z","dueDate":"2024-02-15","status":"VIEWED","pdfUrl":"https://pdf/3","customer":{"id":"cust-1"},"total":{"raw":0}}},
	{"node":{"id":"inv-4","createdAt":"2024-01-20T00:00:00Z","dueDate":"2024-02-20","status":"VOIDED","pdfUrl":"https://pdf/4","customer":{"id":"cust-1"},"total":{"raw":5000}}},
	{"node":{"id":"inv-5","createdAt":"2024-01-25T00:00:00Z","dueDate":"2024-02-25","status":"PAID","pdfUrl":"https://pdf/5","customer":{"id":"cust-1"},"total":{"raw":750}}},
	{"node":{"id":"inv-6","createdAt":"2024-01-30T00:00:00Z","dueDate":"2024-03-01","status":"OVERDUE","pdfUrl":"https://pdf/6","customer":{"id":"cust-other"},"total":{"raw":9999}}}
]}}}}`

func TestParseFilter(t *testing.T) {
	assert.Equal(t, FilterUnpaid, ParseFilter("unpaid"))
	assert.Equal(t, FilterPaid, ParseFilter("paid"))
	assert.Equal(t, FilterAll, ParseFilter("all"))
	assert.Equal(t, FilterAll, ParseFilter(""))
	assert.Equal(t, FilterAll, ParseFilter("bogus"))
}

func TestService_List_DropsOtherCustomers(t *testing.T) {
	svc := newTestService(t, &graphqlFixture{invoicesBody: invoiceFixture})

	invoices, err := svc.List(context.Background(), "biz-1", "cust-1", FilterAll)
	require.NoError(t, err)
	require.Len(t, invoices, 5)
	for _, inv := range invoices {
		assert.Equal(t, "cust-1", inv.CustomerID)
	}
}

func TestService_List_UnpaidFilter(t *testing.T) {
	svc := newTestService(t, &graphqlFixture{invoicesBody: invoiceFixture})

	invoices, err := svc.List(context.Background(), "biz-1", "cust-1", FilterUnpaid)
	require.NoError(t, err)
	require.Len(t, invoices, 3)
	ids := []string{invoices[0].ID, invoices[1].ID, invoices[2].ID}
	assert.Equal(t, []string{"inv-1", "inv-2", "inv-3"}, ids, "voided and paid are excluded")
}

func TestService_List_PaidFilter(t *testing.T) {
	svc := newTestService(t, &graphqlFixture{invoicesBody: invoiceFixture})

	invoices, err := svc.List(context.Background(), "biz-1", "cust-1", FilterPaid)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "inv-5", invoices[0].ID)
}

func TestService_ResolveCustomer(t *testing.T) {
	customers := `{"data":{"businesses":{"edges":[
		{"node":{"id":"biz-1","name":"Acme","customers":{"edges":[
			{"node":{"id":"cust-1","email":"Alice@Example.com","firstName":"Alice","lastName":"Smith"}}
		]}}},
		{"node":{"id":"biz-2","name":"Other","customers":{"edges":[]}}}
	]}}}`
	svc := newTestService(t, &graphqlFixture{customersBody: customers})

	businessID, customerID, found, err := svc.ResolveCustomer(context.Background(), "Acme", "alice@example.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "biz-1", businessID)
	assert.Equal(t, "cust-1", customerID)

	_, _, found, err = svc.ResolveCustomer(context.Background(), "Acme", "bob@example.com")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, found, err = svc.ResolveCustomer(context.Background(), "Missing Co", "alice@example.com")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOutstandingCents(t *testing.T) {
	invoices := []wave.Invoice{
		{ID: "a", Status: wave.StatusUnsent, AmountCents: 1000},
		{ID: "b", Status: wave.StatusOverdue, AmountCents: 2550},
		{ID: "c", Status: wave.StatusViewed, AmountCents: 0},
		{ID: "d", Status: wave.StatusVoided, AmountCents: 5000},
		{ID: "e", Status: wave.StatusPaid, AmountCents: 750},
	}

	total := OutstandingCents(invoices)
	assert.Equal(t, int64(3550), total)
	assert.Equal(t, "35.50", wave.FormatCents(total))
}
