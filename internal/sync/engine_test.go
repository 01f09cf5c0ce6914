package sync

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
	"github.com/birdielabs/waveportal/internal/invoices"
	"github.com/birdielabs/waveportal/internal/models"
	"github.com/birdielabs/waveportal/internal/notify"
	"github.com/birdielabs/waveportal/internal/store"
	"github.com/birdielabs/waveportal/internal/tokens"
	"github.com/birdielabs/waveportal/internal/wave"
)

const emptyInvoicesBody = `{"data":{"business":{"invoices":{"edges":[]}}}}`

type engineFixture struct {
	engine   *Engine
	accounts *store.AccountStore
	mailer   *notify.MockMailer
}

// newEngineFixture wires a full engine against a fake Wave endpoint and an
// in-memory directory. customersBody is the GraphQL customer listing; the
// invoice listing returned during the notification step is invoicesBody.
func newEngineFixture(t *testing.T, customersBody, invoicesBody string, sendWelcome bool) *engineFixture {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "viewer"):
			fmt.Fprint(w, `{"data":{"viewer":{"id":"u1"}}}`)
		case strings.Contains(req.Query, "customers"):
			fmt.Fprint(w, customersBody)
		default:
			fmt.Fprint(w, invoicesBody)
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Wave.GraphQLURL = srv.URL
	cfg.Wave.TokenURL = srv.URL + "/token"
	cfg.Email.PortalURL = "https://portal.example.com"
	cfg.Sync.SendWelcome = sendWelcome

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	tokenStore := tokens.NewStore(db)
	require.NoError(t, tokenStore.SaveClient("cid", "secret", "https://cb"))
	require.NoError(t, tokenStore.SaveTokens("at", "rt"))

	logger := zap.NewNop()
	client := wave.NewClient(cfg, logger)
	manager := tokens.NewManager(tokenStore, wave.NewOAuthClient(cfg, logger), client, logger)
	accounts := store.NewAccountStore(db)
	invoiceSvc := invoices.NewService(manager, client, logger)
	mailer := &notify.MockMailer{}
	notifier := notify.NewNotifier(cfg, invoiceSvc, accounts, mailer, logger)

	return &engineFixture{
		engine:   NewEngine(cfg, manager, client, accounts, notifier, logger),
		accounts: accounts,
		mailer:   mailer,
	}
}

const acmeCustomers = `{"data":{"businesses":{"edges":[
	{"node":{"id":"biz-1","name":"Acme","customers":{"edges":[
		{"node":{"id":"cust-a","email":"alice@example.com","firstName":"Alice","lastName":"Smith"}},
		{"node":{"id":"cust-b","email":"bob@example.com","firstName":"Robert","lastName":"Jones"}},
		{"node":{"id":"cust-c","email":"carol@example.com","firstName":"Carol","lastName":"White"}}
	]}}}
]}}}`

func TestEngine_Sync_Reconciles(t *testing.T) {
	f := newEngineFixture(t, acmeCustomers, emptyInvoicesBody, false)

	// bob exists with a stale name, carol is current, dave is gone from the
	// remote, and the admin shares no remote email but must survive anyway.
	require.NoError(t, f.accounts.Create(&models.Account{
		Username: "bob", Email: "bob@example.com",
		FirstName: "Bob", LastName: "Jones", Role: models.RoleCustomer,
	}))
	require.NoError(t, f.accounts.Create(&models.Account{
		Username: "carol", Email: "carol@example.com",
		FirstName: "Carol", LastName: "White", Role: models.RoleCustomer,
	}))
	require.NoError(t, f.accounts.Create(&models.Account{
		Username: "dave", Email: "dave@example.com",
		FirstName: "Dave", LastName: "Old", Role: models.RoleCustomer,
	}))
	require.NoError(t, f.accounts.Create(&models.Account{
		Username: "root", Email: "admin@example.com", Role: "administrator",
	}))

	result, err := f.engine.Sync(context.Background(), "Acme")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, "Sync Summary: Added: 1 | Updated: 1 | Skipped: 1 | Deleted: 1 | Failed: 0", result.Summary())
	assert.Contains(t, result.Lines, "Created user: alice@example.com")
	assert.Contains(t, result.Lines, "Updated: bob@example.com")
	assert.Contains(t, result.Lines, "Skipped: carol@example.com (already exists)")
	assert.Contains(t, result.Lines, "Deleted: dave@example.com")

	alice, err := f.accounts.FindByEmail("alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.True(t, alice.IsSynced())
	assert.NotEmpty(t, alice.PasswordHash)

	bob, err := f.accounts.FindByEmail("bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, bob)
	assert.Equal(t, "Robert", bob.FirstName)
	assert.Equal(t, "Robert Jones", bob.DisplayName)

	gone, err := f.accounts.FindByEmail("dave@example.com")
	require.NoError(t, err)
	assert.Nil(t, gone)

	admin, err := f.accounts.FindByEmail("admin@example.com")
	require.NoError(t, err)
	require.NotNil(t, admin, "non-synced accounts are never deleted")
}

func TestEngine_Sync_UnmanagedRoleSkipped(t *testing.T) {
	customers := `{"data":{"businesses":{"edges":[
		{"node":{"id":"biz-1","name":"Acme","customers":{"edges":[
			{"node":{"id":"cust-a","email":"admin@example.com","firstName":"New","lastName":"Name"}}
		]}}}
	]}}}`
	f := newEngineFixture(t, customers, emptyInvoicesBody, false)

	require.NoError(t, f.accounts.Create(&models.Account{
		Username: "root", Email: "admin@example.com",
		FirstName: "Site", LastName: "Admin", Role: "administrator",
	}))

	result, err := f.engine.Sync(context.Background(), "Acme")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Updated)
	assert.Contains(t, result.Lines, "Skipped: admin@example.com (unmanaged role)")

	admin, err := f.accounts.FindByEmail("admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Site", admin.FirstName, "names of unmanaged accounts stay as they were")
	assert.Empty(t, f.mailer.Sent, "no notification step for unmanaged accounts")
}

func TestEngine_Sync_NoMatchingBusiness(t *testing.T) {
	f := newEngineFixture(t, acmeCustomers, emptyInvoicesBody, false)

	result, err := f.engine.Sync(context.Background(), "Missing Co")
	require.NoError(t, err)

	assert.Zero(t, result.Added+result.Updated+result.Skipped+result.Deleted+result.Failed)
	assert.Equal(t, []string{"No matching business or customers found for Missing Co."}, result.Lines)
}

func TestEngine_Sync_SkipsInvalidEmails(t *testing.T) {
	customers := `{"data":{"businesses":{"edges":[
		{"node":{"id":"biz-1","name":"Acme","customers":{"edges":[
			{"node":{"id":"cust-a","email":"","firstName":"No","lastName":"Email"}},
			{"node":{"id":"cust-b","email":"not-an-email","firstName":"Bad","lastName":"Email"}},
			{"node":{"id":"cust-c","email":"good@example.com","firstName":"Good","lastName":"Email"}}
		]}}}
	]}}}`
	f := newEngineFixture(t, customers, emptyInvoicesBody, false)

	result, err := f.engine.Sync(context.Background(), "Acme")
	require.NoError(t, err)

	// Blank and malformed addresses are dropped without counting.
	assert.Equal(t, 1, result.Added)
	assert.Zero(t, result.Skipped)
	assert.Zero(t, result.Failed)
	assert.Equal(t, []string{"Created user: good@example.com"}, result.Lines)
}

func TestEngine_Sync_WelcomeMail(t *testing.T) {
	customers := `{"data":{"businesses":{"edges":[
		{"node":{"id":"biz-1","name":"Acme","customers":{"edges":[
			{"node":{"id":"cust-a","email":"alice@example.com","firstName":"Alice","lastName":"Smith"}}
		]}}}
	]}}}`
	f := newEngineFixture(t, customers, emptyInvoicesBody, true)

	_, err := f.engine.Sync(context.Background(), "Acme")
	require.NoError(t, err)

	require.Len(t, f.mailer.Sent, 1)
	assert.Equal(t, "alice@example.com", f.mailer.Sent[0].To)
	assert.Equal(t, "Welcome to the Invoice Portal", f.mailer.Sent[0].Subject)
}

func TestEngine_Sync_StoreFailuresAbsorbed(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "viewer"):
			fmt.Fprint(w, `{"data":{"viewer":{"id":"u1"}}}`)
		default:
			fmt.Fprint(w, acmeCustomers)
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Wave.GraphQLURL = srv.URL
	cfg.Wave.TokenURL = srv.URL + "/token"

	tokenDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s-tokens?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(tokenDB))
	tokenStore := tokens.NewStore(tokenDB)
	require.NoError(t, tokenStore.SaveClient("cid", "secret", "https://cb"))
	require.NoError(t, tokenStore.SaveTokens("at", "rt"))

	// The account directory sits on a closed handle, so every per-record
	// lookup and the delete enumeration fail.
	accountDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s-accounts?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(accountDB))
	sqlDB, err := accountDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	logger := zap.NewNop()
	client := wave.NewClient(cfg, logger)
	manager := tokens.NewManager(tokenStore, wave.NewOAuthClient(cfg, logger), client, logger)
	accounts := store.NewAccountStore(accountDB)
	mailer := &notify.MockMailer{}
	invoiceSvc := invoices.NewService(manager, client, logger)
	notifier := notify.NewNotifier(cfg, invoiceSvc, accounts, mailer, logger)
	engine := NewEngine(cfg, manager, client, accounts, notifier, logger)

	result, err := engine.Sync(context.Background(), "Acme")
	require.NoError(t, err, "per-record store failures do not abort the run")

	assert.Equal(t, 4, result.Failed, "three customer lookups plus the delete enumeration")
	assert.Zero(t, result.Added+result.Updated+result.Skipped+result.Deleted)
	require.Len(t, result.Lines, 4)
	assert.Contains(t, result.Lines[0], "Failed: alice@example.com (")
	assert.Contains(t, result.Lines[1], "Failed: bob@example.com (")
	assert.Contains(t, result.Lines[2], "Failed: carol@example.com (")
	assert.Contains(t, result.Lines[3], "Failed: could not enumerate synced accounts (")
	assert.Equal(t, "Sync Summary: Added: 0 | Updated: 0 | Skipped: 0 | Deleted: 0 | Failed: 4", result.Summary())
	assert.Empty(t, mailer.Sent)
}

func TestEngine_RemoveAllSyncedAccounts(t *testing.T) {
	f := newEngineFixture(t, acmeCustomers, emptyInvoicesBody, false)

	require.NoError(t, f.accounts.Create(&models.Account{Username: "c1", Email: "c1@example.com", Role: models.RoleCustomer}))
	require.NoError(t, f.accounts.Create(&models.Account{Username: "c2", Email: "c2@example.com", Role: models.RoleCustomer}))
	require.NoError(t, f.accounts.Create(&models.Account{Username: "root", Email: "admin@example.com", Role: "administrator"}))

	removed, err := f.engine.RemoveAllSyncedAccounts()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	admin, err := f.accounts.FindByEmail("admin@example.com")
	require.NoError(t, err)
	assert.NotNil(t, admin)
}

func TestHandleFor(t *testing.T) {
	assert.Equal(t, "alicesmith", handleFor("Alice", "Smith", "alice@example.com"))
	assert.Equal(t, "oconnor1", handleFor("O'Connor", "1", "x@example.com"))
	assert.Equal(t, "alice", handleFor("", "", "Alice@example.com"))
}
