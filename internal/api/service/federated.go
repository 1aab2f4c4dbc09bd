package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	"github.com/coinpulse/coinpulse/internal/api/store"
	"github.com/coinpulse/coinpulse/pkg/cryptox"
	"github.com/coinpulse/coinpulse/pkg/idx"
	"github.com/coinpulse/coinpulse/pkg/slogx"
)

// Key namespaces in the ephemeral store.
const (
	StateKeyPrefix = "oauth:state:"
	NonceKeyPrefix = "oauth:nonce:"

	DefaultStateTTL = 120 * time.Second
)

// IdentityProvider is the server side of one OAuth2/OIDC login provider.
type IdentityProvider interface {
	Name() string

	// AuthCodeURL builds the authorization redirect. offline asks for
	// offline access and forced consent (the register flow).
	AuthCodeURL(state, nonce string, offline bool) string

	// Exchange trades an authorization code for the raw ID token.
	Exchange(ctx context.Context, code string) (string, error)

	// VerifyIDToken checks signature, issuer, audience and expiry and returns
	// the identity together with the nonce embedded in the token.
	VerifyIDToken(ctx context.Context, rawIDToken string) (domain.ExternalIdentity, string, error)
}

// stateRecord is the value stored under oauth:state:<state>.
type stateRecord struct {
	Provider string            `json:"provider"`
	Method   domain.FlowMethod `json:"method"`
	Nonce    string            `json:"nonce"`
}

// FederatedService runs the two-phase authorization-code login. Nothing
// about an in-flight login lives in process memory; state and nonce are
// single-use keys in the ephemeral store.
type FederatedService struct {
	Providers map[string]IdentityProvider
	Ephemeral store.Ephemeral
	Users     store.Users
	Sessions  *SessionService

	StateTTL        time.Duration
	StoreTimeout    time.Duration
	ProviderTimeout time.Duration
}

func (s *FederatedService) provider(name string) (IdentityProvider, error) {
	p, ok := s.Providers[strings.ToLower(name)]
	if !ok {
		return nil, badRequest("unsupported identity provider")
	}
	return p, nil
}

func (s *FederatedService) stateTTL() time.Duration {
	if s.StateTTL > 0 {
		return s.StateTTL
	}
	return DefaultStateTTL
}

// Begin stores a fresh state and nonce and returns the provider URL to
// redirect the browser to.
func (s *FederatedService) Begin(ctx context.Context, providerName string, method domain.FlowMethod) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	if method == "" {
		method = domain.FlowLogin
	}
	if !method.Valid() {
		return "", badRequest("method must be login or register")
	}

	state, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", internalError(err)
	}
	nonce, err := cryptox.NewNonce()
	if err != nil {
		return "", internalError(err)
	}

	record, err := json.Marshal(stateRecord{Provider: p.Name(), Method: method, Nonce: nonce})
	if err != nil {
		return "", internalError(err)
	}

	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	ttl := s.stateTTL()
	if err := s.Ephemeral.Set(sctx, StateKeyPrefix+state, string(record), ttl); err != nil {
		return "", internalError(err)
	}
	if err := s.Ephemeral.Set(sctx, NonceKeyPrefix+nonce, "valid", ttl); err != nil {
		return "", internalError(err)
	}

	return p.AuthCodeURL(state, nonce, method == domain.FlowRegister), nil
}

// Complete handles the provider callback. The state is consumed before
// anything else happens, so a replayed or concurrent duplicate callback
// fails with BadRequest even if the first one later fails too.
func (s *FederatedService) Complete(ctx context.Context, providerName, code, state string) (domain.Session, error) {
	l := slogx.FromContext(ctx)

	if code == "" || state == "" {
		return domain.Session{}, badRequest("code and state are required")
	}
	p, err := s.provider(providerName)
	if err != nil {
		return domain.Session{}, err
	}

	rec, err := s.takeState(ctx, state)
	if err != nil {
		return domain.Session{}, err
	}
	if rec.Provider != p.Name() {
		return domain.Session{}, badRequest("invalid or expired state")
	}

	pctx, cancel := withTimeout(ctx, s.ProviderTimeout)
	defer cancel()

	rawIDToken, err := p.Exchange(pctx, code)
	if err != nil {
		l.Warn("authorization code exchange failed", slog.String("provider", p.Name()), slog.Any("error", err))
		return domain.Session{}, externalService("identity provider token exchange failed", err)
	}

	identity, tokenNonce, err := p.VerifyIDToken(pctx, rawIDToken)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return domain.Session{}, e
		}
		l.Warn("id token verification failed", slog.String("provider", p.Name()), slog.Any("error", err))
		return domain.Session{}, invalidToken("invalid identity token", err)
	}

	if err := s.takeNonce(ctx, rec.Nonce, tokenNonce); err != nil {
		return domain.Session{}, err
	}

	user, err := s.resolve(ctx, rec.Method, identity)
	if err != nil {
		return domain.Session{}, err
	}

	pair, err := s.Sessions.Issue(ctx, user)
	if err != nil {
		return domain.Session{}, err
	}

	l.Info("federated login completed",
		slog.String("provider", p.Name()),
		slog.String("method", string(rec.Method)),
		slog.String("user_id", user.ID),
	)

	user.PasswordHash = ""
	user.RefreshTokenHash = ""
	return domain.Session{User: user, Tokens: pair}, nil
}

func (s *FederatedService) takeState(ctx context.Context, state string) (stateRecord, error) {
	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	raw, err := s.Ephemeral.Take(sctx, StateKeyPrefix+state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return stateRecord{}, badRequest("invalid or expired state")
		}
		return stateRecord{}, internalError(err)
	}

	var rec stateRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || !rec.Method.Valid() || rec.Nonce == "" {
		return stateRecord{}, badRequest("invalid or expired state")
	}
	return rec, nil
}

// takeNonce requires the ID token's nonce to be the one bound to the state
// and consumes it.
func (s *FederatedService) takeNonce(ctx context.Context, expected, got string) error {
	if got == "" || !cryptox.Equal(expected, got) {
		return badRequest("invalid or expired nonce")
	}

	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	if _, err := s.Ephemeral.Take(sctx, NonceKeyPrefix+got); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return badRequest("invalid or expired nonce")
		}
		return internalError(err)
	}
	return nil
}

// resolve maps the external identity to a local user. Login only looks up
// an existing link; register creates the user, or links an existing
// account when the provider vouches for the email address.
func (s *FederatedService) resolve(ctx context.Context, method domain.FlowMethod, id domain.ExternalIdentity) (domain.User, error) {
	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	user, err := s.Users.GetUserByProvider(sctx, id.Provider, id.Subject)
	switch {
	case err == nil:
		return user, nil
	case !errors.Is(err, store.ErrNotFound):
		return domain.User{}, internalError(err)
	}

	if method == domain.FlowLogin {
		return domain.User{}, unauthorized("no account is linked to this identity, register first", nil)
	}

	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email == "" {
		return domain.User{}, badRequest("identity provider did not return an email address")
	}

	existing, err := s.Users.GetUserByIdentifier(sctx, "", email)
	switch {
	case err == nil:
		// Only an unlinked account can be claimed, and only with a
		// verified email. An existing link is never replaced.
		if !id.EmailVerified || existing.Provider != "" {
			return domain.User{}, badRequest("user with email or username already exists")
		}
		err := s.Users.LinkProvider(sctx, existing.ID, id.Provider, id.Subject)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrAlreadyExists):
			return domain.User{}, badRequest("user with email or username already exists")
		default:
			return domain.User{}, internalError(err)
		}
		existing.Provider, existing.ProviderSubject = id.Provider, id.Subject
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return domain.User{}, internalError(err)
	}

	return s.create(sctx, id, email)
}

const usernameAttempts = 4

func (s *FederatedService) create(ctx context.Context, id domain.ExternalIdentity, email string) (domain.User, error) {
	base := usernameFromEmail(email)
	fullName := strings.TrimSpace(id.Name)
	if fullName == "" {
		fullName = base
	}

	for attempt := range usernameAttempts {
		username := base
		if attempt > 0 {
			username = base + "-" + randomSuffix()
		}

		user := domain.User{
			ID:              idx.New().String(),
			FullName:        fullName,
			Email:           email,
			Username:        username,
			Provider:        id.Provider,
			ProviderSubject: id.Subject,
		}

		err := s.Users.CreateUser(ctx, user)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, internalError(err)
		}
		// Clash on username is retried with a suffix; a clash on email or
		// provider means another request registered the same identity.
		if _, lerr := s.Users.GetUserByIdentifier(ctx, "", email); lerr == nil {
			return domain.User{}, badRequest("user with email or username already exists")
		}
	}

	return domain.User{}, internalError(errors.New("could not allocate a unique username"))
}

var usernameStrip = regexp.MustCompile(`[^a-z0-9._-]+`)

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	name := strings.Trim(usernameStrip.ReplaceAllString(strings.ToLower(local), ""), "._-")
	if len(name) > 24 {
		name = name[:24]
	}
	for len(name) < 3 {
		name += "0"
	}
	return name
}

func randomSuffix() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
