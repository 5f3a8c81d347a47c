// Package federation bridges the upstream identity provider's OAuth dance
// back into local sessions and authorization codes.
package federation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/notelab/notelab/backend/idp-service/internal/config"
)

var (
	// ErrTokenExchange wraps any upstream failure while trading the
	// upstream code for tokens. Terminal: the upstream code may already be
	// consumed, so no retry.
	ErrTokenExchange = errors.New("token_exchange_failed")
	// ErrUserInfo wraps any failure fetching the upstream user profile.
	ErrUserInfo = errors.New("userinfo_fetch_failed")
)

// Profile is the subset of upstream userinfo the bridge needs.
type Profile struct {
	Subject string
	Email   string
	Name    string
}

// Provider drives the upstream provider's own OAuth2/OIDC flow. Exactly one
// upstream is configured (Google-shaped); the handler rejects other
// provider path segments before this type is involved.
type Provider struct {
	name       string
	oauth      *oauth2.Config
	oidc       *gooidc.Provider
	httpClient *http.Client
}

// NewProvider discovers the upstream endpoints from its issuer.
func NewProvider(ctx context.Context, cfg config.UpstreamConfig) (*Provider, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	ctx = gooidc.ClientContext(ctx, httpClient)
	provider, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("upstream discovery: %w", err)
	}
	return &Provider{
		name: cfg.Provider,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		oidc:       provider,
		httpClient: httpClient,
	}, nil
}

// Name returns the provider's path-segment name (e.g. "google").
func (p *Provider) Name() string { return p.name }

// AuthCodeURL builds the upstream authorize URL carrying the upstream PKCE
// challenge derived from verifier.
func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades the upstream authorization code for upstream tokens using
// the upstream PKCE verifier plus the client secret: some upstreams require
// confidential-client auth even with PKCE.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	return tok, nil
}

// UserInfo fetches the upstream user profile with the exchanged token.
func (p *Provider) UserInfo(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	ctx = gooidc.ClientContext(ctx, p.httpClient)
	info, err := p.oidc.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	var extra struct {
		Name string `json:"name"`
	}
	_ = info.Claims(&extra)
	if info.Subject == "" || info.Email == "" {
		return nil, fmt.Errorf("%w: upstream userinfo missing subject or email", ErrUserInfo)
	}
	return &Profile{Subject: info.Subject, Email: info.Email, Name: extra.Name}, nil
}
