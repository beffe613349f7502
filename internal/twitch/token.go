package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is the client-credentials endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// expiryMargin is subtracted from the server-reported lifetime so a token is
// never used right at its expiry.
const expiryMargin = 5 * time.Minute

// ErrMissingCredentials is returned when the client id or secret is unset.
var ErrMissingCredentials = errors.New("twitch client id and secret are not configured")

// Credentials returns the application's client id and secret. It is called
// on every token exchange so updated settings take effect without restart.
type Credentials func(ctx context.Context) (clientID, secret string, err error)

// StaticCredentials returns a Credentials func for fixed values.
func StaticCredentials(clientID, secret string) Credentials {
	return func(context.Context) (string, string, error) {
		return clientID, secret, nil
	}
}

// TokenOptions configures a TokenCache.
type TokenOptions struct {
	Credentials Credentials
	HTTPClient  *http.Client
	// TokenURL defaults to DefaultTokenURL.
	TokenURL string
	// Now defaults to time.Now.
	Now func() time.Time
}

// TokenCache holds an app access token and refreshes it lazily. The
// exchange itself is the oauth2 client-credentials grant.
type TokenCache struct {
	creds    Credentials
	client   *http.Client
	tokenURL string
	now      func() time.Time

	mu        sync.Mutex
	token     *oauth2.Token
	clientID  string
	expiresAt time.Time
}

// NewTokenCache creates an empty cache.
func NewTokenCache(opts TokenOptions) *TokenCache {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TokenCache{
		creds:    opts.Credentials,
		client:   opts.HTTPClient,
		tokenURL: opts.TokenURL,
		now:      opts.Now,
	}
}

// GetToken returns the cached token, exchanging credentials for a new one
// when none is cached or the cached one is past its safe lifetime.
// Concurrent callers share a single exchange.
func (c *TokenCache) GetToken(ctx context.Context) (string, error) {
	tok, _, err := c.get(ctx)
	return tok, err
}

// get also returns the client id the token was issued for, which Helix
// requires alongside the bearer token.
func (c *TokenCache) get(ctx context.Context) (token, clientID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil && c.now().Before(c.expiresAt) {
		return c.token.AccessToken, c.clientID, nil
	}

	if c.creds == nil {
		return "", "", ErrMissingCredentials
	}
	id, secret, err := c.creds(ctx)
	if err != nil {
		return "", "", fmt.Errorf("load credentials: %w", err)
	}
	if id == "" || secret == "" {
		return "", "", ErrMissingCredentials
	}

	cfg := &clientcredentials.Config{
		ClientID:     id,
		ClientSecret: secret,
		TokenURL:     c.tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	issued := c.now()
	tok, err := cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, c.client))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return "", "", fmt.Errorf("%w: token exchange: %s", ErrRequestFailed, bodyMessage(re.Response, re.Body))
		}
		return "", "", fmt.Errorf("%w: token exchange: %v", ErrRequestFailed, err)
	}
	if tok.AccessToken == "" {
		return "", "", fmt.Errorf("%w: empty access token", ErrRequestFailed)
	}

	c.token = tok
	c.clientID = id
	c.expiresAt = issued.Add(lifetime(tok, time.Now()) - expiryMargin)
	return tok.AccessToken, id, nil
}

// lifetime is how long tok was granted for, counted from received.
func lifetime(tok *oauth2.Token, received time.Time) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return tok.Expiry.Sub(received).Round(time.Second)
}

// Invalidate drops the cached token; the next GetToken performs a fresh
// exchange.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
	c.expiresAt = time.Time{}
}

// ExpiresAt returns when the cached token stops being used, or the zero
// time when nothing is cached.
func (c *TokenCache) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return time.Time{}
	}
	return c.expiresAt
}
