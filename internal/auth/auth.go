// Package auth mints mail-client handles from stored OAuth refresh
// tokens. A MailClient carries the resolved account email and a token
// source both backends use: the REST scanner puts the bearer token in an
// Authorization header, the IMAP scanner feeds it to SASL authentication.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes required for header-only mailbox scanning over both transports.
var scopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://mail.google.com/",
}

// MailClient is a per-account handle for mailbox access.
type MailClient struct {
	// AccountEmail is the mailbox owner's address, resolved from the
	// provider profile at construction time.
	AccountEmail string

	tokenSource oauth2.TokenSource
}

// Token returns a fresh bearer token, refreshing through the underlying
// token source when the cached one has expired.
func (m *MailClient) Token(_ context.Context) (string, error) {
	tok, err := m.tokenSource.Token()
	if err != nil {
		return "", fmt.Errorf("minting bearer token: %w", err)
	}
	return tok.AccessToken, nil
}

// NewStaticMailClient builds a MailClient around a fixed token. Used by
// tests and by callers that already hold a valid access token.
func NewStaticMailClient(accountEmail, accessToken string) *MailClient {
	return &MailClient{
		AccountEmail: accountEmail,
		tokenSource: oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: accessToken},
		),
	}
}

// Provider exchanges refresh tokens for MailClient handles.
type Provider struct {
	cfg        *oauth2.Config
	profileURL string
	httpClient *http.Client
}

// NewProvider creates a provider for the given OAuth client. profileURL
// is the Gmail profile endpoint used to resolve the account email;
// normally <gmail base url>/users/me/profile.
func NewProvider(clientID, clientSecret, redirectURL, profileURL string) *Provider {
	return &Provider{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       scopes,
		},
		profileURL: profileURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetMailClient builds a MailClient from a stored refresh token. The
// returned handle caches access tokens and refreshes them on demand.
func (p *Provider) GetMailClient(ctx context.Context, refreshToken string) (*MailClient, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("missing refresh token")
	}

	ts := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	ts = oauth2.ReuseTokenSource(nil, ts)

	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("exchanging refresh token: %w", err)
	}

	email, err := p.resolveAccountEmail(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	return &MailClient{AccountEmail: email, tokenSource: ts}, nil
}

// resolveAccountEmail looks up the mailbox owner's address via the Gmail
// profile endpoint.
func (p *Provider) resolveAccountEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching mail profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected profile status %d", resp.StatusCode)
	}

	var profile struct {
		EmailAddress string `json:"emailAddress"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("decoding mail profile: %w", err)
	}
	if profile.EmailAddress == "" {
		return "", fmt.Errorf("mail profile has no email address")
	}

	return profile.EmailAddress, nil
}
