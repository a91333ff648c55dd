package approval

import (
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionObject is the single piece of shared mutable state in the core: the
// current account, its profile once loaded, and the in-flight window marker
// between authentication succeeding and the profile fetch finishing.
//
// Instances are treated as immutable values. The state machine never mutates
// a published session in place; it builds a replacement and swaps it whole,
// so observers can never see a new account paired with an old profile.
type SessionObject struct {
	Account        *Account `json:"account,omitempty"`
	Profile        *Profile `json:"profile,omitempty"`
	LoadingProfile bool     `json:"loading_profile,omitempty"`
}

// Authenticated reports whether an account is attached.
func (s *SessionObject) Authenticated() bool {
	return s != nil && s.Account != nil
}

// AccountID returns the current account id, or uuid.Nil when signed out.
func (s *SessionObject) AccountID() uuid.UUID {
	if s == nil || s.Account == nil {
		return uuid.Nil
	}
	return s.Account.ID
}

// SessionBroker publishes session replacements to subscribers. It is the
// observer abstraction consumers use instead of reaching into the state
// machine's internals.
type SessionBroker struct {
	mu      sync.RWMutex
	current *SessionObject
	nextID  int
	subs    map[int]func(*SessionObject)
}

// NewSessionBroker returns a broker holding an empty, signed-out session.
func NewSessionBroker() *SessionBroker {
	return &SessionBroker{
		current: &SessionObject{},
		subs:    map[int]func(*SessionObject){},
	}
}

// Current returns the latest published session value.
func (b *SessionBroker) Current() *SessionObject {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Subscribe registers an observer and immediately delivers the current
// session so late subscribers do not miss state. Returns an unsubscribe
// function.
func (b *SessionBroker) Subscribe(fn func(*SessionObject)) func() {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	current := b.current
	b.mu.Unlock()

	fn(current)

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish replaces the session atomically and notifies subscribers.
func (b *SessionBroker) Publish(session *SessionObject) {
	if session == nil {
		session = &SessionObject{}
	}

	b.mu.Lock()
	b.current = session
	listeners := make([]func(*SessionObject), 0, len(b.subs))
	for _, fn := range b.subs {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(session)
	}
}

// AccountFromToken decodes a gateway-issued access token into an Account.
// The gateway signs sessions with HS256; we verify with the shared signing
// key and read the subject and email claims.
func AccountFromToken(token string, signingKey []byte) (*Account, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, ErrUnableToDecodeSession
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToMapClaims
	}

	return accountFromClaims(claims)
}

func accountFromClaims(claims jwt.MapClaims) (*Account, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, ErrUnableToMapClaims
	}

	id, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrUnableToMapClaims
	}

	account := &Account{ID: id}
	if email, ok := claims["email"].(string); ok {
		account.Email = email
	}

	return account, nil
}
