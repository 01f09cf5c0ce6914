package wave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/birdielabs/waveportal/internal/config"
)

// OAuthClient performs the authorization-code and refresh-token exchanges
// against the Wave token endpoint. Pure request/response: no caching, no
// retries; transient failures propagate to the caller.
type OAuthClient struct {
	httpClient *http.Client
	authURL    string
	tokenURL   string
	scopes     []string
	logger     *zap.Logger
}

// NewOAuthClient creates an OAuth client for the configured endpoints.
func NewOAuthClient(cfg *config.Config, logger *zap.Logger) *OAuthClient {
	return &OAuthClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		authURL:    cfg.Wave.AuthURL,
		tokenURL:   cfg.Wave.TokenURL,
		scopes:     strings.Fields(cfg.Wave.Scopes),
		logger:     logger,
	}
}

func (o *OAuthClient) oauthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       o.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   o.authURL,
			TokenURL:  o.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL builds the authorization URL the admin is sent to, carrying
// the anti-forgery state value.
func (o *OAuthClient) AuthCodeURL(clientID, redirectURI, state string) string {
	return o.oauthConfig(clientID, "", redirectURI).AuthCodeURL(state)
}

// ExchangeCode posts the authorization_code grant. Fails with
// ErrExchangeFailed when the provider response lacks an access token.
func (o *OAuthClient) ExchangeCode(ctx context.Context, clientID, clientSecret, redirectURI, code string) (*TokenPair, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)

	tok, err := o.oauthConfig(clientID, clientSecret, redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access_token", ErrExchangeFailed)
	}

	o.logger.Info("exchanged authorization code for tokens")

	return &TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}, nil
}

// Refresh posts the refresh_token grant. The response may or may not carry
// a re-issued refresh token; the caller persists it only if present.
func (o *OAuthClient) Refresh(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenPair, error) {
	form := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("%w: undecodable response (status %d)", ErrRefreshFailed, resp.StatusCode)
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access_token", ErrRefreshFailed)
	}

	o.logger.Info("refreshed wave access token")

	return &pair, nil
}
