// Package accountstore provides the account parameter storage plug-in API:
// a Backend interface implemented by one or more concrete stores, and a
// Manager that fans reads/writes out across them by priority.
package accountstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
	"golang.org/x/crypto/bcrypt"
)

// Well-known parameter keys synthesizing an Account view out of the flat
// key/value space every Backend actually stores.
const (
	paramDisplayName = "display_name"
	paramEnabled     = "enabled"
	paramCredential  = "credential"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrNoBackends      = errors.New("no account storage backends registered")
	ErrReadOnlyBackend = errors.New("backend does not accept writes")
)

// Event identifies what changed about an account. EventAltered and
// EventAlteredOne are kept distinct (one backend-wide, one single-account)
// rather than collapsed onto a shared signal slot.
type Event int

const (
	EventCreated Event = iota
	EventAltered
	EventAlteredOne
	EventToggled
	EventDeleted
)

func (e Event) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventAltered:
		return "altered"
	case EventAlteredOne:
		return "altered-one"
	case EventToggled:
		return "toggled"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is emitted on a Backend's Watch channel when an account's stored
// parameters change.
type Change struct {
	AccountID string
	Event     Event
}

// Account is the persisted view of a registered dispatch account: an
// identity a CDO's Channel.Account field points at. CredentialHash is a
// bcrypt digest, never the credential itself, and is never serialized.
type Account struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name,omitempty"`
	Provider       string `json:"provider"` // backend Provider() that currently owns this account
	Enabled        bool   `json:"enabled"`
	CredentialHash string `json:"-"`
}

// Backend is the storage plug-in interface. A single account's parameters
// are a flat key/value map; Commit persists any buffered Set/Delete calls
// for one account (or all accounts, if accountID is empty).
type Backend interface {
	Priority() int
	Name() string
	Description() string
	Provider() string

	Get(ctx context.Context, accountID, key string) (string, bool, error)
	Set(ctx context.Context, accountID, key, value string) error
	Delete(ctx context.Context, accountID, key string) error
	Commit(ctx context.Context, accountID string) error
	List(ctx context.Context) ([]string, error)
	Ready(ctx context.Context) error

	// Watch returns a channel of Change notifications for this backend.
	// Implementations that cannot observe external changes may return nil.
	Watch() <-chan Change
}

// Manager fans Get/List across every registered backend in descending
// priority order, and routes Set/Delete/Commit to the highest-priority
// backend that accepts writes.
type Manager struct {
	mu       sync.RWMutex
	backends []Backend
}

// NewManager returns an empty Manager; backends are added with Register.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a backend and re-sorts the backend list by descending
// priority (ties broken by registration order).
func (m *Manager) Register(b Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.backends = append(m.backends, b)
	sort.SliceStable(m.backends, func(i, j int) bool {
		return m.backends[i].Priority() > m.backends[j].Priority()
	})

	logger.Info("account storage backend registered", "name", b.Name(), "priority", b.Priority())
}

// Backends returns the registered backends in priority order.
func (m *Manager) Backends() []Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Backend, len(m.backends))
	copy(out, m.backends)
	return out
}

// Ready calls Ready on every registered backend, returning the first error.
func (m *Manager) Ready(ctx context.Context) error {
	for _, b := range m.Backends() {
		if err := b.Ready(ctx); err != nil {
			return fmt.Errorf("backend %q not ready: %w", b.Name(), err)
		}
	}
	return nil
}

// Get queries backends in priority order and returns the first hit. This
// is what lets a lower-priority archival backend answer for an account a
// higher-priority live backend has since evicted.
func (m *Manager) Get(ctx context.Context, accountID, key string) (string, bool, error) {
	backends := m.Backends()
	if len(backends) == 0 {
		return "", false, ErrNoBackends
	}
	for _, b := range backends {
		val, ok, err := b.Get(ctx, accountID, key)
		if err != nil {
			return "", false, fmt.Errorf("backend %q: %w", b.Name(), err)
		}
		if ok {
			return val, true, nil
		}
	}
	return "", false, nil
}

// Set writes to the highest-priority backend willing to accept the write.
func (m *Manager) Set(ctx context.Context, accountID, key, value string) error {
	backends := m.Backends()
	if len(backends) == 0 {
		return ErrNoBackends
	}
	for _, b := range backends {
		err := b.Set(ctx, accountID, key, value)
		if errors.Is(err, ErrReadOnlyBackend) {
			continue
		}
		if err != nil {
			return fmt.Errorf("backend %q: %w", b.Name(), err)
		}
		return nil
	}
	return ErrReadOnlyBackend
}

// Delete removes a key from every writable backend; it is not an error for
// a backend to not have the key.
func (m *Manager) Delete(ctx context.Context, accountID, key string) error {
	var firstErr error
	for _, b := range m.Backends() {
		err := b.Delete(ctx, accountID, key)
		if err != nil && !errors.Is(err, ErrReadOnlyBackend) && firstErr == nil {
			firstErr = fmt.Errorf("backend %q: %w", b.Name(), err)
		}
	}
	return firstErr
}

// Commit flushes buffered writes on every writable backend.
func (m *Manager) Commit(ctx context.Context, accountID string) error {
	var firstErr error
	for _, b := range m.Backends() {
		err := b.Commit(ctx, accountID)
		if err != nil && !errors.Is(err, ErrReadOnlyBackend) && firstErr == nil {
			firstErr = fmt.Errorf("backend %q: %w", b.Name(), err)
		}
	}
	return firstErr
}

// List merges the account IDs known to every backend, de-duplicated.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, b := range m.Backends() {
		ids, err := b.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", b.Name(), err)
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ownerBackend returns the highest-priority backend whose List includes
// accountID, i.e. the backend that currently owns the account.
func (m *Manager) ownerBackend(ctx context.Context, accountID string) (Backend, error) {
	for _, b := range m.Backends() {
		ids, err := b.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", b.Name(), err)
		}
		for _, id := range ids {
			if id == accountID {
				return b, nil
			}
		}
	}
	return nil, ErrAccountNotFound
}

// GetAccount synthesizes an Account from the well-known parameter keys
// backends store for accountID.
func (m *Manager) GetAccount(ctx context.Context, accountID string) (Account, error) {
	owner, err := m.ownerBackend(ctx, accountID)
	if err != nil {
		return Account{}, err
	}

	account := Account{ID: accountID, Provider: owner.Provider(), Enabled: true}

	if displayName, ok, err := m.Get(ctx, accountID, paramDisplayName); err != nil {
		return Account{}, err
	} else if ok {
		account.DisplayName = displayName
	}

	if enabled, ok, err := m.Get(ctx, accountID, paramEnabled); err != nil {
		return Account{}, err
	} else if ok {
		account.Enabled, err = strconv.ParseBool(enabled)
		if err != nil {
			return Account{}, fmt.Errorf("account %q: invalid %q value %q: %w", accountID, paramEnabled, enabled, err)
		}
	}

	if hash, ok, err := m.Get(ctx, accountID, paramCredential); err != nil {
		return Account{}, err
	} else if ok {
		account.CredentialHash = hash
	}

	return account, nil
}

// ListAccounts returns the full Account view for every account known to
// any registered backend, in the same order as List.
func (m *Manager) ListAccounts(ctx context.Context) ([]Account, error) {
	ids, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	accounts := make([]Account, 0, len(ids))
	for _, id := range ids {
		account, err := m.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// SetCredential hashes secret with bcrypt and stores the digest as the
// account's credential parameter. The plaintext is never persisted.
func (m *Manager) SetCredential(ctx context.Context, accountID, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash credential: %w", err)
	}
	return m.Set(ctx, accountID, paramCredential, string(hash))
}

// VerifyCredential reports whether secret matches the account's stored
// credential hash. A missing hash is treated as a non-match, not an error.
func (m *Manager) VerifyCredential(ctx context.Context, accountID, secret string) (bool, error) {
	hash, ok, err := m.Get(ctx, accountID, paramCredential)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	switch err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify credential: %w", err)
	}
}

// Watch fans in Change notifications from every backend onto one channel.
// The returned channel is closed when ctx is done.
func (m *Manager) Watch(ctx context.Context) <-chan Change {
	out := make(chan Change, 16)
	var wg sync.WaitGroup

	for _, b := range m.Backends() {
		src := b.Watch()
		if src == nil {
			continue
		}
		wg.Add(1)
		go func(src <-chan Change) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case c, ok := <-src:
					if !ok {
						return
					}
					select {
					case out <- c:
					case <-ctx.Done():
						return
					}
				}
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
