package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/oauth2"
)

// Well-known Google endpoints, used when OIDCConfig leaves them empty.
const (
	GoogleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenURL = "https://oauth2.googleapis.com/token"
	GoogleJWKSURL  = "https://www.googleapis.com/oauth2/v3/certs"
	GoogleIssuer   = "https://accounts.google.com"
)

const (
	jwksRefreshInterval = time.Hour
	jwksMinRefetch      = 10 * time.Second
	idTokenLeeway       = time.Minute
)

var idTokenAlgorithms = []jose.SignatureAlgorithm{jose.RS256, jose.ES256, jose.EdDSA}

type OIDCConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	JWKSURL      string
	Issuer       string
	Scopes       []string

	// HTTPClient is used for the token and JWKS endpoints.
	HTTPClient *http.Client
}

// OIDCProvider talks to an OpenID Connect provider: x/oauth2 for the
// authorization-code exchange, go-jose for ID token verification against
// the provider's JWKS.
type OIDCProvider struct {
	name     string
	issuer   string
	clientID string
	jwksURL  string
	oauth    *oauth2.Config
	client   *http.Client

	mu        sync.RWMutex
	keys      jose.JSONWebKeySet
	fetchedAt time.Time
}

var _ IdentityProvider = (*OIDCProvider)(nil)

// NewOIDCProvider fills unset endpoints with Google's and validates the rest.
func NewOIDCProvider(cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.Name == "" {
		cfg.Name = "google"
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = GoogleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = GoogleTokenURL
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = GoogleJWKSURL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = GoogleIssuer
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oidc: client id, client secret and redirect url are required")
	}

	return &OIDCProvider{
		name:     strings.ToLower(cfg.Name),
		issuer:   cfg.Issuer,
		clientID: cfg.ClientID,
		jwksURL:  cfg.JWKSURL,
		client:   cfg.HTTPClient,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
				// client_id and client_secret go in the POST body.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}, nil
}

func (p *OIDCProvider) Name() string { return p.name }

func (p *OIDCProvider) AuthCodeURL(state, nonce string, offline bool) string {
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("nonce", nonce)}
	if offline {
		opts = append(opts, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

func (p *OIDCProvider) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return "", err
	}

	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return "", errors.New("oidc: token response has no id_token")
	}
	return raw, nil
}

type idTokenClaims struct {
	Nonce         string   `json:"nonce"`
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
}

func (p *OIDCProvider) VerifyIDToken(ctx context.Context, raw string) (domain.ExternalIdentity, string, error) {
	tok, err := jwt.ParseSigned(raw, idTokenAlgorithms)
	if err != nil {
		return domain.ExternalIdentity{}, "", fmt.Errorf("oidc: parse id token: %w", err)
	}
	if len(tok.Headers) == 0 {
		return domain.ExternalIdentity{}, "", errors.New("oidc: id token has no header")
	}

	key, err := p.key(ctx, tok.Headers[0].KeyID)
	if err != nil {
		return domain.ExternalIdentity{}, "", err
	}

	var (
		std   jwt.Claims
		extra idTokenClaims
	)
	if err := tok.Claims(key.Key, &std, &extra); err != nil {
		return domain.ExternalIdentity{}, "", fmt.Errorf("oidc: verify id token: %w", err)
	}

	err = std.ValidateWithLeeway(jwt.Expected{
		Issuer:      p.issuer,
		AnyAudience: jwt.Audience{p.clientID},
	}, idTokenLeeway)
	if err != nil {
		return domain.ExternalIdentity{}, "", fmt.Errorf("oidc: id token claims: %w", err)
	}
	if std.Subject == "" {
		return domain.ExternalIdentity{}, "", errors.New("oidc: id token has no subject")
	}

	return domain.ExternalIdentity{
		Provider:      p.name,
		Subject:       std.Subject,
		Email:         extra.Email,
		EmailVerified: bool(extra.EmailVerified),
		Name:          extra.Name,
	}, extra.Nonce, nil
}

// key returns the JWKS key for kid, refetching the set when it is stale or
// the kid is unknown (providers rotate keys).
func (p *OIDCProvider) key(ctx context.Context, kid string) (jose.JSONWebKey, error) {
	p.mu.RLock()
	keys, fetchedAt := p.keys, p.fetchedAt
	p.mu.RUnlock()

	if found := keys.Key(kid); len(found) > 0 && time.Since(fetchedAt) < jwksRefreshInterval {
		return found[0], nil
	}
	if time.Since(fetchedAt) < jwksMinRefetch {
		return jose.JSONWebKey{}, fmt.Errorf("oidc: unknown key id %q", kid)
	}

	set, err := p.fetchJWKS(ctx)
	if err != nil {
		return jose.JSONWebKey{}, externalService("identity provider keys unavailable", err)
	}

	p.mu.Lock()
	p.keys, p.fetchedAt = set, time.Now()
	p.mu.Unlock()

	if found := set.Key(kid); len(found) > 0 {
		return found[0], nil
	}
	return jose.JSONWebKey{}, fmt.Errorf("oidc: unknown key id %q", kid)
}

func (p *OIDCProvider) fetchJWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.jwksURL, nil)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return jose.JSONWebKeySet{}, fmt.Errorf("oidc: jwks endpoint returned %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("oidc: decode jwks: %w", err)
	}
	return set, nil
}

// flexBool accepts both true and "true"; some providers send the string.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*b = flexBool(v)
	return nil
}
