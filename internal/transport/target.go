package transport

import (
	"strings"
	"sync"
	"time"
)

// Target holds the process-wide binding every request is issued against:
// the base address of the bound POS server and the bearer token of the
// logged-in waiter.  The session layer is its only writer; the transport
// and realtime clients read one consistent Snapshot per request.
type Target struct {
	mu      sync.RWMutex
	baseURL string
	token   string

	// scope serializes WithAddress swaps so two scoped operations never
	// restore each other's address.
	scope sync.Mutex

	// Timeout is the default per-request timeout when a Request sets none.
	Timeout time.Duration
}

// Snapshot is an immutable view of a Target.
type Snapshot struct {
	BaseURL string
	Token   string
}

// NewTarget returns a Target with the given default timeout and nothing bound.
func NewTarget(timeout time.Duration) *Target {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Target{Timeout: timeout}
}

// Snapshot returns the current address and token together.
func (t *Target) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{BaseURL: t.baseURL, Token: t.token}
}

// BaseURL returns the bound base address, "" when none.
func (t *Target) BaseURL() string { return t.Snapshot().BaseURL }

// Token returns the bearer token, "" when none.
func (t *Target) Token() string { return t.Snapshot().Token }

// SetBaseURL binds a new base address.  Trailing slashes are dropped so
// paths can always start with "/".
func (t *Target) SetBaseURL(u string) {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	t.mu.Lock()
	t.baseURL = u
	t.mu.Unlock()
}

// SetToken installs the bearer token attached to authenticated requests.
func (t *Target) SetToken(tok string) {
	t.mu.Lock()
	t.token = tok
	t.mu.Unlock()
}

// ClearToken drops the bearer token.
func (t *Target) ClearToken() { t.SetToken("") }

// Clear unbinds the address and drops the token in one step.
func (t *Target) Clear() {
	t.mu.Lock()
	t.baseURL = ""
	t.token = ""
	t.mu.Unlock()
}

// swap installs u and returns a func that puts the previous address back.
func (t *Target) swap(u string) (restore func()) {
	t.mu.Lock()
	prev := t.baseURL
	t.baseURL = strings.TrimRight(strings.TrimSpace(u), "/")
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		t.baseURL = prev
		t.mu.Unlock()
	}
}
