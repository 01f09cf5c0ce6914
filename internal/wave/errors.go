package wave

import "errors"

var (
	// ErrNoCredentials means the admin has not completed setup. Not
	// retryable until credentials are saved and the account connected.
	ErrNoCredentials = errors.New("wave credentials not configured")

	// ErrExchangeFailed means the authorization code exchange did not
	// yield an access token. Fatal for that callback request only.
	ErrExchangeFailed = errors.New("authorization code exchange failed")

	// ErrRefreshFailed means the refresh grant was rejected. The stored
	// credential is unusable and the admin must re-authorize.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrMalformedResponse means the GraphQL payload did not match the
	// expected shape for the query that was sent.
	ErrMalformedResponse = errors.New("malformed wave response")
)
