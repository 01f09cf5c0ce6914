package tokens

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/birdielabs/waveportal/internal/wave"
)

// Manager wraps the OAuth client and credential store behind a single
// operation: get a currently valid access token. It refreshes only after
// observing Wave's explicit expired-auth signal, never speculatively.
type Manager struct {
	store  *Store
	oauth  *wave.OAuthClient
	client *wave.Client
	logger *zap.Logger
}

// NewManager creates a token manager.
func NewManager(store *Store, oauth *wave.OAuthClient, client *wave.Client, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		oauth:  oauth,
		client: client,
		logger: logger,
	}
}

// ValidToken returns an access token believed to be usable right now.
//
// The stored token is probed with a cheap authenticated query. A transport
// failure returns the stored token as a best-effort value: transient network
// trouble must not force a refresh. Only the expired-auth error entry in the
// probe response triggers the refresh grant, and a successful refresh is
// persisted exactly once before the new token is returned.
func (m *Manager) ValidToken(ctx context.Context) (string, error) {
	cred, err := m.store.Load()
	if err != nil {
		return "", err
	}
	if !cred.Complete() {
		return "", wave.ErrNoCredentials
	}

	probe, err := m.client.Query(ctx, cred.AccessToken, wave.ProbeQuery, nil)
	if err != nil {
		m.logger.Warn("token probe failed, returning stored token",
			zap.Error(err))
		return cred.AccessToken, nil
	}

	if !wave.IsAuthExpired(probe) {
		return cred.AccessToken, nil
	}

	m.logger.Info("wave access token expired, refreshing")

	pair, err := m.oauth.Refresh(ctx, cred.ClientID, cred.ClientSecret, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, wave.ErrRefreshFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", wave.ErrRefreshFailed, err)
	}

	if err := m.store.SaveTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	return pair.AccessToken, nil
}
