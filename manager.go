package authclient

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Manager owns the session state machine. It is the only component that
// mutates the session and the credential store; everything else reads
// snapshots or subscribes to events.
//
// Transitions, including the credential store write that belongs to them,
// are applied under a single lock. Profile resolution runs outside the lock
// and its result is dropped when a newer transition happened meanwhile.
type Manager struct {
	mu          sync.Mutex
	store       CredentialStore
	resolver    ProfileResolver
	logger      Logger
	sink        EventSink
	now         func() time.Time
	transitions map[Status]map[Status]struct{}

	state        Session
	generation   uint64
	bootstrapped bool

	listeners   map[uint64]SessionListener
	listenerSeq uint64
	pending     []SessionEvent
	dispatching bool
}

var _ Authenticator = (*Manager)(nil)

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(l Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithEventSink sets the EventSink that receives every session event.
func WithEventSink(sink EventSink) ManagerOption {
	return func(m *Manager) {
		m.sink = normalizeEventSink(sink)
	}
}

// WithManagerClock injects a custom clock (useful for tests).
func WithManagerClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewManager creates a Manager in the Unauthenticated state. Call Bootstrap
// once at startup to rehydrate a stored token.
func NewManager(store CredentialStore, resolver ProfileResolver, opts ...ManagerOption) *Manager {
	if store == nil {
		panic("authclient: NewManager requires a CredentialStore")
	}
	if resolver == nil {
		panic("authclient: NewManager requires a ProfileResolver")
	}

	m := &Manager{
		store:    store,
		resolver: resolver,
		logger:   defLogger{},
		sink:     noopEventSink{},
		now:      time.Now,
		transitions: map[Status]map[Status]struct{}{
			StatusUnauthenticated: {
				StatusUnauthenticated: {},
				StatusChecking:        {},
			},
			StatusChecking: {
				StatusChecking:        {},
				StatusAuthenticated:   {},
				StatusUnauthenticated: {},
			},
			StatusAuthenticated: {
				StatusChecking:        {},
				StatusUnauthenticated: {},
			},
		},
		listeners: map[uint64]SessionListener{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	m.state = Session{Status: StatusUnauthenticated, UpdatedAt: m.now()}

	return m
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// IsAuthenticated reports whether the session holds a resolved profile.
func (m *Manager) IsAuthenticated() bool {
	return m.Snapshot().IsAuthenticated()
}

// Subscribe registers a listener and returns a function that removes it.
// Listeners are called outside the state lock, one event at a time, in the
// order transitions were applied.
func (m *Manager) Subscribe(listener SessionListener) (unsubscribe func()) {
	if listener == nil {
		return func() {}
	}

	m.mu.Lock()
	m.listenerSeq++
	id := m.listenerSeq
	m.listeners[id] = listener
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Bootstrap rehydrates the session from the credential store. It runs once;
// later calls return ErrAlreadyBootstrapped.
//
// A stored token is validated against the backend: success authenticates,
// ErrInvalidToken evicts it, any other failure keeps it and leaves the
// session Checking with Err set so the UI can offer a retry.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	if m.bootstrapped {
		m.mu.Unlock()
		return newError(ErrAlreadyBootstrapped, nil, nil)
	}
	m.bootstrapped = true

	token, err := m.store.Get(ctx)
	if err != nil {
		err = newError(ErrTransient, err, map[string]any{"operation": "credential_store.get"})
		m.logger.Error("failed to read stored token", "error", err)
		m.applyLocked(ctx, EventBootstrapped, StatusUnauthenticated, func(s *Session) {
			*s = Session{Err: err}
		}, err)
		m.unlockAndDispatch(ctx)
		return err
	}

	if strings.TrimSpace(token) == "" {
		m.applyLocked(ctx, EventBootstrapped, StatusUnauthenticated, func(s *Session) {
			*s = Session{}
		}, nil)
		m.unlockAndDispatch(ctx)
		return nil
	}

	gen := m.beginCheckingLocked(ctx, EventBootstrapped, token)
	m.unlockAndDispatch(ctx)

	return m.resolve(ctx, gen, token)
}

// Login persists token and validates it. An empty token is rejected
// without any state change.
//
// On failure the token is kept unless the backend confirmed it invalid;
// the caller is responsible for presenting the returned error.
func (m *Manager) Login(ctx context.Context, token string) error {
	gen, err := m.startLogin(ctx, token)
	if err != nil {
		return err
	}
	return m.resolve(ctx, gen, token)
}

// LoginAsync performs the synchronous part of Login (validation,
// persistence, move to Checking) before returning, then resolves the
// profile in the background. The channel yields the outcome and is closed.
func (m *Manager) LoginAsync(ctx context.Context, token string) <-chan error {
	out := make(chan error, 1)

	gen, err := m.startLogin(ctx, token)
	if err != nil {
		out <- err
		close(out)
		return out
	}

	go func() {
		defer close(out)
		out <- m.resolve(ctx, gen, token)
	}()

	return out
}

// Retry re-validates the current token, typically after a transient failure.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	token := m.state.Token
	if token == "" {
		m.mu.Unlock()
		return withMessage(ErrValidation, "No session to retry", nil, nil)
	}
	gen := m.beginCheckingLocked(ctx, EventRetryStarted, token)
	m.unlockAndDispatch(ctx)

	return m.resolve(ctx, gen, token)
}

// Logout clears the session and the credential store. It always succeeds
// and is idempotent.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.generation++

	var storeErr error
	if err := m.store.Clear(ctx); err != nil {
		storeErr = newError(ErrTransient, err, map[string]any{"operation": "credential_store.clear"})
		m.logger.Error("failed to clear stored token", "error", storeErr)
	}

	m.applyLocked(ctx, EventLoggedOut, StatusUnauthenticated, func(s *Session) {
		*s = Session{}
	}, storeErr)
	m.unlockAndDispatch(ctx)
}

func (m *Manager) startLogin(ctx context.Context, token string) (uint64, error) {
	if strings.TrimSpace(token) == "" {
		m.logger.Error("login called with empty token")
		return 0, withMessage(ErrValidation, "Login called with empty token", nil, nil)
	}

	m.mu.Lock()
	gen := m.beginCheckingLocked(ctx, EventLoginStarted, token)
	m.unlockAndDispatch(ctx)

	return gen, nil
}

// beginCheckingLocked persists token and moves to Checking. A store failure
// is logged and reported on the event; the session continues in memory.
func (m *Manager) beginCheckingLocked(ctx context.Context, typ SessionEventType, token string) uint64 {
	m.generation++

	var storeErr error
	if typ != EventBootstrapped && typ != EventRetryStarted {
		if err := m.store.Set(ctx, token); err != nil {
			storeErr = newError(ErrTransient, err, map[string]any{"operation": "credential_store.set"})
			m.logger.Error("failed to persist token", "error", storeErr)
		}
	}

	m.applyLocked(ctx, typ, StatusChecking, func(s *Session) {
		*s = Session{Token: token, Err: storeErr}
	}, storeErr)

	return m.generation
}

func (m *Manager) resolve(ctx context.Context, gen uint64, token string) error {
	profile, err := m.resolver.Resolve(ctx, token)
	if err == nil && profile == nil {
		err = newError(ErrProtocol, nil, map[string]any{"reason": "resolver returned no profile"})
	}
	if err != nil && !isClassified(err) {
		err = newError(ErrTransient, err, nil)
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.logger.Debug("dropping superseded profile resolution", "error", err)
		return withMessage(ErrSuperseded, "Your session changed before the login completed", err, nil)
	}

	switch {
	case err == nil:
		m.applyLocked(ctx, EventResolved, StatusAuthenticated, func(s *Session) {
			s.Profile = profile.clone()
			s.Err = nil
		}, nil)
	case IsInvalidToken(err):
		m.generation++
		if cerr := m.store.Clear(ctx); cerr != nil {
			m.logger.Error("failed to evict invalid token", "error", cerr)
		}
		m.logger.Info("evicted invalid token")
		m.applyLocked(ctx, EventEvicted, StatusUnauthenticated, func(s *Session) {
			*s = Session{Err: err}
		}, err)
	default:
		m.logger.Warn("profile resolution failed, keeping token", "error", err)
		m.applyLocked(ctx, EventResolveFailed, StatusChecking, func(s *Session) {
			s.Err = err
		}, err)
	}
	m.unlockAndDispatch(ctx)

	return err
}

// applyLocked validates and applies a transition and queues its event.
// Callers hold m.mu.
func (m *Manager) applyLocked(ctx context.Context, typ SessionEventType, to Status, mutate func(*Session), cause error) {
	from := m.state.Status
	if !m.canTransition(from, to) {
		err := newError(ErrInvalidTransition, nil, map[string]any{
			"from":  from,
			"to":    to,
			"event": typ,
		})
		m.logger.Error("rejected session transition", "error", err)
		return
	}

	next := m.state
	mutate(&next)
	next.Status = to
	next.UpdatedAt = m.now()
	m.state = next

	m.pending = append(m.pending, SessionEvent{
		ID:         uuid.New(),
		Type:       typ,
		From:       from,
		To:         to,
		Session:    next.clone(),
		Err:        cause,
		OccurredAt: next.UpdatedAt,
	})
}

// unlockAndDispatch releases m.mu and delivers queued events. Only one
// goroutine dispatches at a time; events queued by listeners or other
// goroutines meanwhile are delivered by the same loop, in order.
func (m *Manager) unlockAndDispatch(ctx context.Context) {
	if m.dispatching {
		m.mu.Unlock()
		return
	}
	m.dispatching = true

	for {
		if len(m.pending) == 0 {
			m.dispatching = false
			m.mu.Unlock()
			return
		}

		events := m.pending
		m.pending = nil
		listeners := make([]SessionListener, 0, len(m.listeners))
		for _, id := range m.sortedListenerIDs() {
			listeners = append(listeners, m.listeners[id])
		}
		m.mu.Unlock()

		for _, evt := range events {
			if err := m.sink.Record(ctx, evt); err != nil {
				m.logger.Warn("session event sink error", "error", err)
			}
			for _, l := range listeners {
				l(evt)
			}
		}

		m.mu.Lock()
	}
}

func (m *Manager) sortedListenerIDs() []uint64 {
	ids := make([]uint64, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *Manager) canTransition(from, to Status) bool {
	if allowed, ok := m.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func isClassified(err error) bool {
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr)
}
