// Package session holds the authentication state of the client: the token
// in memory, mirrored to durable storage on every change.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chemviz/chemviz/internal/apiclient"
	"github.com/chemviz/chemviz/internal/logging"
)

// State of the session
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "Authenticated"
	}
	return "Anonymous"
}

// ErrNoToken is returned when the backend accepted the credentials but sent
// no token back
var ErrNoToken = errors.New("no token in response")

// AuthError is a failed login or registration. Message is what the user sees.
type AuthError struct {
	Op      string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

const fallbackAuthMessage = "Auth error"

// Exchanger trades credentials for a token at a backend path
type Exchanger interface {
	ExchangeCredentials(ctx context.Context, path, username, password string) (apiclient.TokenResponse, error)
}

// Store is the session state machine. The zero value is not usable; call Open.
type Store struct {
	mu        sync.RWMutex
	token     string
	storage   TokenStorage
	exchanger Exchanger
	logger    *slog.Logger

	listenerMu sync.Mutex
	listeners  []func(State)
}

// Open restores the session from storage. A stored token is trusted as is
// and never validated against the backend.
func Open(storage TokenStorage, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	token, err := storage.Load()
	if err != nil {
		return nil, err
	}
	logger.Debug("session restored", "state", stateOf(token))
	return &Store{token: token, storage: storage, logger: logger}, nil
}

// SetExchanger wires the backend used by Login and Register. The client
// reads its token from the store, so the two are built in sequence.
func (s *Store) SetExchanger(e Exchanger) {
	s.mu.Lock()
	s.exchanger = e
	s.mu.Unlock()
}

// Token returns the current token or "". It satisfies apiclient.TokenSource.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// State reports Authenticated iff a token is held
func (s *Store) State() State {
	return stateOf(s.Token())
}

// Subscribe registers fn to be called after every committed transition
func (s *Store) Subscribe(fn func(State)) {
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenerMu.Unlock()
}

// Login exchanges credentials at the token endpoint
func (s *Store) Login(ctx context.Context, username, password string) error {
	return s.authenticate(ctx, "login", apiclient.PathLogin, username, password)
}

// Register creates an account; a successful registration is also a login
func (s *Store) Register(ctx context.Context, username, password string) error {
	return s.authenticate(ctx, "register", apiclient.PathRegister, username, password)
}

func (s *Store) authenticate(ctx context.Context, op, path, username, password string) error {
	s.mu.RLock()
	exchanger := s.exchanger
	s.mu.RUnlock()
	if exchanger == nil {
		return &AuthError{Op: op, Message: fallbackAuthMessage, Err: errors.New("session has no backend")}
	}

	resp, err := exchanger.ExchangeCredentials(ctx, path, strings.TrimSpace(username), password)
	if err != nil {
		s.logger.Info("authentication failed", "op", op, "error", err)
		return &AuthError{Op: op, Message: apiclient.UserMessage(err, fallbackAuthMessage), Err: err}
	}
	if resp.Token == "" {
		return &AuthError{Op: op, Message: fallbackAuthMessage, Err: ErrNoToken}
	}

	if err := s.set(resp.Token); err != nil {
		return &AuthError{Op: op, Message: err.Error(), Err: err}
	}
	s.logger.Info("authenticated", "op", op)
	return nil
}

// Logout drops the token locally. There is no server side call. The session
// ends even when the token file cannot be removed; that error is returned
// after the transition.
func (s *Store) Logout() error {
	s.mu.Lock()
	err := s.storage.Delete()
	s.token = ""
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("failed to delete stored token", "error", err)
		err = fmt.Errorf("failed to delete stored token: %w", err)
	}
	s.logger.Info("logged out")
	s.notify(Anonymous)
	return err
}

// set persists first and swaps memory second, under one lock
func (s *Store) set(token string) error {
	s.mu.Lock()
	if err := s.storage.Save(token); err != nil {
		s.mu.Unlock()
		return err
	}
	s.token = token
	s.mu.Unlock()

	s.notify(Authenticated)
	return nil
}

func (s *Store) notify(state State) {
	s.listenerMu.Lock()
	listeners := make([]func(State), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

func stateOf(token string) State {
	if token == "" {
		return Anonymous
	}
	return Authenticated
}
