/*
Package auth
File: provider.go
Description:
    The Provider fronts the external identity provider.
    It verifies upstream ID tokens, provisions users, issues and revokes
    session tokens, and lets other components observe sign-in and sign-out
    through Subscribe.
*/

package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sessionIssuer is the iss claim of session tokens.
const sessionIssuer = "idle-tycoon"

// userNamespace scopes the deterministic user ids.
var userNamespace = uuid.MustParse("6f1c7b52-93a1-4a5e-9d0c-3f2b8e4d7a10")

// User is an authenticated player.
type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Provider    string `json:"provider"`
}

// Listener observes the authenticated user: u is nil on sign-out.
type Listener func(uid string, u *User)

// ProfileSink records a signed-in user's profile.
type ProfileSink interface {
	SaveProfile(ctx context.Context, uid, email, displayName string) error
}

// Options configures a Provider.
type Options struct {
	Secret           string        // Signs session tokens
	AllowedProviders []string      // Empty allows any sign-in method
	TokenTTL         time.Duration // Session token lifetime
}

type sessionClaims struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
	Provider string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// Provider is the identity collaborator used by the API.
type Provider struct {
	opts     Options
	secret   []byte
	verifier IdentityVerifier
	profiles ProfileSink
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	inFlight  map[string]bool      // credentials being exchanged
	linked    map[string]string    // email -> provider it was first used with
	revoked   map[string]time.Time // jti -> token expiry
	listeners map[int]Listener
	nextID    int
}

// NewProvider builds a Provider. profiles may be nil.
func NewProvider(opts Options, verifier IdentityVerifier, profiles ProfileSink, logger *zap.Logger) (*Provider, error) {
	secret := strings.TrimSpace(opts.Secret)
	if secret == "" {
		return nil, errors.New("auth: session secret not configured")
	}
	if verifier == nil {
		return nil, errors.New("auth: identity verifier required")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		opts:      opts,
		secret:    []byte(secret),
		verifier:  verifier,
		profiles:  profiles,
		logger:    logger,
		now:       time.Now,
		inFlight:  make(map[string]bool),
		linked:    make(map[string]string),
		revoked:   make(map[string]time.Time),
		listeners: make(map[int]Listener),
	}, nil
}

// SignIn exchanges an upstream ID token for a session. Unknown users are
// provisioned on the way, so SignIn and SignUp behave the same.
func (p *Provider) SignIn(ctx context.Context, idToken string) (*User, string, error) {
	return p.authenticate(ctx, idToken, false)
}

// SignUp is SignIn under another name.
func (p *Provider) SignUp(ctx context.Context, idToken string) (*User, string, error) {
	return p.authenticate(ctx, idToken, true)
}

func (p *Provider) authenticate(ctx context.Context, idToken string, isSignUp bool) (*User, string, error) {
	action := "signing in"
	if isSignUp {
		action = "signing up"
	}

	user, token, err := p.exchange(ctx, idToken)
	if err != nil {
		p.logger.Warn("error "+action, zap.String("code", Code(err)), zap.Error(err))
		return nil, "", err
	}

	p.logger.Info("user authenticated", zap.String("user_id", user.UID), zap.String("provider", user.Provider))
	p.notify(user.UID, user)
	return user, token, nil
}

func (p *Provider) exchange(ctx context.Context, idToken string) (*User, string, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, "", newError(CodeInvalidCredential, ErrNoCredential)
	}

	// 1. One exchange per credential at a time
	p.mu.Lock()
	if p.inFlight[idToken] {
		p.mu.Unlock()
		return nil, "", newError(CodeCancelledPopup, errors.New("sign-in already in progress"))
	}
	p.inFlight[idToken] = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, idToken)
		p.mu.Unlock()
	}()

	// 2. Verify with the identity provider
	id, err := p.verifier.Verify(ctx, idToken)
	if err != nil {
		if Code(err) == "" {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, "", contextError(ctxErr)
			}
			return nil, "", newError(CodeNetworkRequestFailed, err)
		}
		return nil, "", err
	}
	if len(p.opts.AllowedProviders) > 0 && !slices.Contains(p.opts.AllowedProviders, id.Provider) {
		return nil, "", newError(CodeOperationNotAllowed, fmt.Errorf("provider %q disabled", id.Provider))
	}

	// 3. Provision or authenticate
	user := &User{
		UID:         UserID(id.Provider, id.Subject),
		Email:       id.Email,
		DisplayName: id.DisplayName,
		PhotoURL:    id.PhotoURL,
		Provider:    id.Provider,
	}
	if err := p.link(user); err != nil {
		return nil, "", err
	}
	if p.profiles != nil {
		if err := p.profiles.SaveProfile(ctx, user.UID, user.Email, user.DisplayName); err != nil {
			return nil, "", newError(CodeNetworkRequestFailed, err)
		}
	}

	// 4. Issue the session token
	token, err := p.issue(user)
	if err != nil {
		return nil, "", fmt.Errorf("issue session token: %w", err)
	}
	return user, token, nil
}

// link remembers which provider an email first signed in with.
func (p *Provider) link(u *User) error {
	if u.Email == "" {
		return nil
	}
	email := strings.ToLower(u.Email)

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.linked[email]; ok && existing != u.Provider {
		return newError(CodeAccountExists, fmt.Errorf("%s is linked to %s", email, existing))
	}
	p.linked[email] = u.Provider
	return nil
}

func (p *Provider) issue(u *User) (string, error) {
	now := p.now()
	claims := sessionClaims{
		Email:    u.Email,
		Name:     u.DisplayName,
		Picture:  u.PhotoURL,
		Provider: u.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.UID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.opts.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

func (p *Provider) parse(token string) (*sessionClaims, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, newError(CodeInvalidCredential, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, newError(CodeInvalidCredential, ErrNoCredential)
	}
	return &claims, nil
}

// Authenticate validates a session token and returns its user.
func (p *Provider) Authenticate(token string) (*User, error) {
	claims, err := p.parse(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	_, revoked := p.revoked[claims.ID]
	p.mu.Unlock()
	if revoked {
		return nil, newError(CodeInvalidCredential, ErrRevoked)
	}

	return &User{
		UID:         claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
		Provider:    claims.Provider,
	}, nil
}

// SignOut revokes token and tells listeners the user is gone.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	claims, err := p.parse(strings.TrimSpace(token))
	if err != nil {
		p.logger.Warn("error signing out", zap.Error(err))
		return err
	}

	p.mu.Lock()
	p.revoked[claims.ID] = claims.ExpiresAt.Time
	p.pruneRevokedLocked()
	p.mu.Unlock()

	p.logger.Info("user signed out", zap.String("user_id", claims.Subject))
	p.notify(claims.Subject, nil)
	return nil
}

// pruneRevokedLocked forgets revocations of tokens that have expired anyway.
func (p *Provider) pruneRevokedLocked() {
	now := p.now()
	for jti, exp := range p.revoked {
		if now.After(exp) {
			delete(p.revoked, jti)
		}
	}
}

// Subscribe registers fn for sign-in and sign-out notifications.
// The returned func unsubscribes.
func (p *Provider) Subscribe(fn Listener) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Provider) notify(uid string, u *User) {
	p.mu.Lock()
	listeners := make([]Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(uid, u)
	}
}

// UserID derives the stable user id for a provider account.
func UserID(provider, subject string) string {
	return uuid.NewSHA1(userNamespace, []byte(provider+":"+subject)).String()
}
