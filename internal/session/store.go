// Package session owns the signed-in state of every browser client: login,
// logout, restoring a session from persisted tokens, and the global teardown
// triggered by any 401 from the incident API.
package session

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geocoder89/incidentdesk/internal/actorctx"
	"github.com/geocoder89/incidentdesk/internal/backend"
	"github.com/geocoder89/incidentdesk/internal/domain/role"
	"github.com/geocoder89/incidentdesk/internal/observability"
	"github.com/geocoder89/incidentdesk/internal/storage"
	"golang.org/x/sync/singleflight"
)

// AuthAPI is the slice of the incident API the store needs.
type AuthAPI interface {
	Token(ctx context.Context, username, password string) (backend.TokenPair, error)
	Profile(ctx context.Context, token string) (backend.Profile, error)
}

type Options struct {
	// TokenTTL bounds how long persisted tokens are kept.
	TokenTTL time.Duration
	// RestoreWait is how long Resolve waits for a restore before reporting
	// StatusLoading.
	RestoreWait    time.Duration
	RestoreTimeout time.Duration

	Log  *slog.Logger
	Prom *observability.Prom
	Now  func() time.Time
}

type clientState struct {
	gen     uint64
	session *Session
}

const lockStripes = 64

type Store struct {
	api  AuthAPI
	kv   storage.Store
	opts Options

	mu      sync.RWMutex
	clients map[string]*clientState
	gen     atomic.Uint64

	// striped by client id; serializes storage writes for one client
	locks [lockStripes]sync.Mutex

	restores singleflight.Group

	lmu       sync.RWMutex
	listeners []func(clientID string)
}

func NewStore(api AuthAPI, kv storage.Store, opts Options) *Store {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.RestoreTimeout <= 0 {
		opts.RestoreTimeout = 5 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store{
		api:     api,
		kv:      kv,
		opts:    opts,
		clients: make(map[string]*clientState),
	}
}

// OnTeardown registers fn to run whenever a client's session ends, by
// logout or by a 401.
func (s *Store) OnTeardown(fn func(clientID string)) {
	s.lmu.Lock()
	s.listeners = append(s.listeners, fn)
	s.lmu.Unlock()
}

func (s *Store) notify(clientID string) {
	s.lmu.RLock()
	fns := append([]func(string){}, s.listeners...)
	s.lmu.RUnlock()

	for _, fn := range fns {
		fn(clientID)
	}
}

func (s *Store) lock(clientID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	m := &s.locks[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

// Current returns the active session of clientID, if any.
func (s *Store) Current(clientID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.clients[clientID]
	if !ok || st.session == nil {
		return Session{}, false
	}
	return *st.session, true
}

// Login exchanges credentials for tokens, loads the profile and makes the
// result the client's only session. Any previous session of the client is
// dropped first, so a failed login always leaves the client signed out.
func (s *Store) Login(ctx context.Context, clientID, username, password string) (Session, error) {
	if clientID == "" {
		return Session{}, ErrNoClient
	}

	if err := s.drop(ctx, clientID); err != nil {
		s.opts.Log.WarnContext(ctx, "could not clear previous session", "client_id", clientID, "err", err)
	}

	pair, err := s.api.Token(ctx, username, password)
	if err != nil {
		s.opts.Prom.SessionEvent("login_failed")
		s.opts.Log.InfoContext(ctx, "login failed", "client_id", clientID, "username", username, "err", err)
		return Session{}, newLoginError(err)
	}

	profile, err := s.api.Profile(ctx, pair.Access)
	if err != nil {
		s.opts.Prom.SessionEvent("login_failed")
		s.opts.Log.WarnContext(ctx, "profile fetch after login failed", "client_id", clientID, "err", err)
		return Session{}, newLoginError(err)
	}

	sess := newSession(profile, pair.Access)

	unlock := s.lock(clientID)
	defer unlock()

	err = storage.SaveTokens(ctx, s.kv, clientID, storage.Tokens{Access: pair.Access, Refresh: pair.Refresh}, s.opts.TokenTTL)
	if err != nil {
		_ = storage.ClearTokens(ctx, s.kv, clientID)
		s.opts.Prom.SessionEvent("login_failed")
		return Session{}, err
	}

	s.mu.Lock()
	s.clients[clientID] = &clientState{gen: s.gen.Add(1), session: &sess}
	s.mu.Unlock()

	s.opts.Prom.SessionEvent("login_ok")
	s.opts.Log.InfoContext(ctx, "login", "client_id", clientID, "user_id", sess.UserID, "role", sess.Role.String())

	return sess, nil
}

// Logout clears the client's persisted tokens and session. Calling it for a
// client that is not signed in is fine.
func (s *Store) Logout(ctx context.Context, clientID string) error {
	if clientID == "" {
		return ErrNoClient
	}

	err := s.drop(ctx, clientID)
	s.opts.Prom.SessionEvent("logout")
	s.opts.Log.InfoContext(ctx, "logout", "client_id", clientID)
	return err
}

// Teardown is the global 401 handler. It ends the session of the client
// found in ctx, but only while token is still the one that session holds:
// a late 401 for a token that was since replaced leaves the new session
// alone. Callers are expected to send the user back to "/".
func (s *Store) Teardown(ctx context.Context, endpoint, token string) {
	clientID, ok := actorctx.ClientIDFrom(ctx)
	if !ok {
		return
	}

	unlock := s.lock(clientID)
	if !s.holds(ctx, clientID, token) {
		unlock()
		s.opts.Log.DebugContext(ctx, "ignoring 401 for a replaced token", "client_id", clientID, "endpoint", endpoint)
		return
	}
	had, err := s.dropLocked(ctx, clientID)
	unlock()

	if had {
		s.notify(clientID)
	}
	if err != nil {
		s.opts.Log.ErrorContext(ctx, "teardown could not clear storage", "client_id", clientID, "err", err)
	}
	s.opts.Prom.SessionEvent("teardown")
	s.opts.Log.WarnContext(ctx, "session torn down after 401", "client_id", clientID, "endpoint", endpoint)
}

// holds reports whether token belongs to the client's current session, or
// to its persisted tokens when no session is loaded. An empty token or
// nothing to compare against counts as a match. Caller holds the client lock.
func (s *Store) holds(ctx context.Context, clientID, token string) bool {
	if token == "" {
		return true
	}

	s.mu.RLock()
	var current string
	if st, ok := s.clients[clientID]; ok && st.session != nil {
		current = st.session.Token
	}
	s.mu.RUnlock()

	if current != "" {
		return current == token
	}

	stored, err := storage.LoadTokens(ctx, s.kv, clientID)
	if err != nil {
		return true
	}
	return stored.Access == token
}

func (s *Store) drop(ctx context.Context, clientID string) error {
	unlock := s.lock(clientID)
	had, err := s.dropLocked(ctx, clientID)
	unlock()

	if had {
		s.notify(clientID)
	}
	return err
}

// dropLocked forgets the client and clears its storage. Caller holds the
// client lock.
func (s *Store) dropLocked(ctx context.Context, clientID string) (bool, error) {
	s.mu.Lock()
	_, had := s.clients[clientID]
	delete(s.clients, clientID)
	s.mu.Unlock()

	return had, storage.ClearTokens(context.WithoutCancel(ctx), s.kv, clientID)
}

// Resolve reports the client's state, restoring it from storage the first
// time. When the restore takes longer than RestoreWait the client sees
// StatusLoading and the restore keeps running.
func (s *Store) Resolve(ctx context.Context, clientID string) State {
	if clientID == "" {
		return State{Status: StatusAnonymous}
	}

	if sess, ok := s.Current(clientID); ok {
		return State{Status: StatusAuthenticated, Session: &sess}
	}

	ch := s.restores.DoChan(clientID, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(actorctx.WithClientID(ctx, clientID)), s.opts.RestoreTimeout)
		defer cancel()
		return s.Restore(rctx, clientID), nil
	})

	if s.opts.RestoreWait <= 0 {
		select {
		case res := <-ch:
			return res.Val.(State)
		default:
			return State{Status: StatusLoading}
		}
	}

	timer := time.NewTimer(s.opts.RestoreWait)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.Val.(State)
	case <-timer.C:
		return State{Status: StatusLoading}
	case <-ctx.Done():
		return State{Status: StatusLoading}
	}
}

// Restore rebuilds the session from persisted tokens. Any failure (expired
// or rejected token, unreachable API) clears everything that was persisted.
func (s *Store) Restore(ctx context.Context, clientID string) State {
	if sess, ok := s.Current(clientID); ok {
		return State{Status: StatusAuthenticated, Session: &sess}
	}

	gen := s.begin(clientID)

	tokens, err := storage.LoadTokens(ctx, s.kv, clientID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.opts.Log.ErrorContext(ctx, "restore could not read storage", "client_id", clientID, "err", err)
		}
		s.forget(clientID, gen)
		return State{Status: StatusAnonymous}
	}

	if exp, ok := accessExpiry(tokens.Access); ok && !s.opts.Now().Before(exp) {
		s.discard(ctx, clientID, gen, "expired")
		return s.settled(clientID)
	}

	profile, err := s.api.Profile(ctx, tokens.Access)
	if err != nil {
		s.discard(ctx, clientID, gen, err.Error())
		return s.settled(clientID)
	}

	sess := newSession(profile, tokens.Access)

	s.mu.Lock()
	st, ok := s.clients[clientID]
	installed := ok && st.gen == gen
	if installed {
		st.session = &sess
	}
	s.mu.Unlock()

	if !installed {
		// logged out or logged in again meanwhile; that state wins
		return s.settled(clientID)
	}

	s.opts.Prom.SessionEvent("restored")
	s.opts.Log.InfoContext(ctx, "session restored", "client_id", clientID, "user_id", sess.UserID)
	return State{Status: StatusAuthenticated, Session: &sess}
}

func (s *Store) settled(clientID string) State {
	if cur, ok := s.Current(clientID); ok {
		return State{Status: StatusAuthenticated, Session: &cur}
	}
	return State{Status: StatusAnonymous}
}

// begin registers a restore attempt and returns its generation.
func (s *Store) begin(clientID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.clients[clientID]
	if !ok {
		st = &clientState{gen: s.gen.Add(1)}
		s.clients[clientID] = st
	}
	return st.gen
}

func (s *Store) forget(clientID string, gen uint64) {
	s.mu.Lock()
	if st, ok := s.clients[clientID]; ok && st.gen == gen && st.session == nil {
		delete(s.clients, clientID)
	}
	s.mu.Unlock()
}

func (s *Store) discard(ctx context.Context, clientID string, gen uint64, reason string) {
	unlock := s.lock(clientID)
	defer unlock()

	s.mu.Lock()
	st, ok := s.clients[clientID]
	current := ok && st.gen == gen
	if current {
		delete(s.clients, clientID)
	}
	s.mu.Unlock()

	if !current {
		return
	}

	if err := storage.ClearTokens(ctx, s.kv, clientID); err != nil {
		s.opts.Log.ErrorContext(ctx, "restore could not clear storage", "client_id", clientID, "err", err)
	}
	s.opts.Prom.SessionEvent("restore_failed")
	s.opts.Log.InfoContext(ctx, "restore failed, storage cleared", "client_id", clientID, "reason", reason)
}

func newSession(p backend.Profile, token string) Session {
	r, ok := role.Parse(p.Role)
	if !ok {
		// keep the raw value so the view router can show it
		r = role.Role(p.Role)
	}

	sess := Session{
		UserID:   string(p.ID),
		Username: p.Username,
		Role:     r,
		Token:    token,
	}
	if exp, ok := accessExpiry(token); ok {
		sess.ExpiresAt = exp
	}
	if sess.UserID == "" {
		sess.UserID = p.Username
	}
	return sess
}
