package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chemviz/chemviz/internal/apiclient"
	"github.com/chemviz/chemviz/internal/fakeapi"
)

type failingStorage struct {
	MemoryStorage
	saveErr   error
	deleteErr error
}

func (f *failingStorage) Save(token string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStorage.Save(token)
}

func (f *failingStorage) Delete() error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryStorage.Delete()
}

type stubExchanger struct {
	resp     apiclient.TokenResponse
	err      error
	username string
	path     string
}

func (s *stubExchanger) ExchangeCredentials(ctx context.Context, path, username, password string) (apiclient.TokenResponse, error) {
	s.path = path
	s.username = username
	return s.resp, s.err
}

// newBackedStore wires a store to a fake backend the same way the commands do
func newBackedStore(t *testing.T, storage TokenStorage) (*Store, *fakeapi.Server) {
	t.Helper()
	srv := fakeapi.Start()
	t.Cleanup(srv.Close)

	store, err := Open(storage, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	client := apiclient.New(apiclient.Options{BaseURL: srv.URL, Tokens: store})
	store.SetExchanger(client)
	return store, srv
}

func TestOpenState(t *testing.T) {
	empty := &MemoryStorage{}
	store, err := Open(empty, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if store.State() != Anonymous {
		t.Errorf("Expected Anonymous with empty storage, got %s", store.State())
	}

	stored := &MemoryStorage{}
	stored.Save("abc123")
	store, err = Open(stored, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if store.State() != Authenticated {
		t.Errorf("Expected Authenticated with stored token, got %s", store.State())
	}
	if store.Token() != "abc123" {
		t.Errorf("Expected stored token, got %q", store.Token())
	}
}

func TestLoginLogoutTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chemviz", "token")
	store, srv := newBackedStore(t, NewFileStorage(path))
	backendToken := srv.AddUser("alice", "pw1")

	if err := store.Login(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if store.State() != Authenticated {
		t.Fatalf("Expected Authenticated, got %s", store.State())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("token file missing: %v", err)
	}
	if string(data) != backendToken {
		t.Errorf("Durable token %q differs from backend token %q", data, backendToken)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Token file should be private, got %v", info.Mode().Perm())
	}

	if err := store.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if store.State() != Anonymous {
		t.Errorf("Expected Anonymous after logout, got %s", store.State())
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Token file should be deleted, stat err = %v", err)
	}

	// reopening sees the cleared session
	reopened, err := Open(NewFileStorage(path), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if reopened.State() != Anonymous {
		t.Error("Reopened store should be Anonymous")
	}
}

func TestLoginFailureKeepsState(t *testing.T) {
	storage := &MemoryStorage{}
	store, srv := newBackedStore(t, storage)
	srv.AddUser("alice", "pw1")

	err := store.Login(context.Background(), "alice", "wrong")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected *AuthError, got %T (%v)", err, err)
	}
	if authErr.Message != "Unable to log in with provided credentials." {
		t.Errorf("Unexpected message %q", authErr.Message)
	}
	if store.State() != Anonymous {
		t.Error("Failed login must not change state")
	}
	if tok, _ := storage.Load(); tok != "" {
		t.Errorf("Failed login must not write storage, got %q", tok)
	}
}

func TestRegisterIsImplicitLogin(t *testing.T) {
	store, srv := newBackedStore(t, &MemoryStorage{})

	if err := store.Register(context.Background(), "  bob  ", "pw"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if store.State() != Authenticated {
		t.Fatal("Register should authenticate")
	}

	// the trimmed username must be the one stored by the backend
	second, _ := Open(&MemoryStorage{}, nil)
	second.SetExchanger(apiclient.New(apiclient.Options{BaseURL: srv.URL}))
	if err := second.Login(context.Background(), "bob", "pw"); err != nil {
		t.Errorf("Login with trimmed username failed: %v", err)
	}

	err := second.Register(context.Background(), "bob", "other")
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Message != "username already exists" {
		t.Errorf("Expected duplicate username error, got %v", err)
	}
}

func TestAuthErrorFallback(t *testing.T) {
	tests := []struct {
		name    string
		stub    *stubExchanger
		message string
		sentinel error
	}{
		{
			name:    "empty token",
			stub:    &stubExchanger{resp: apiclient.TokenResponse{}},
			message: "Auth error",
			sentinel: ErrNoToken,
		},
		{
			name:    "server message",
			stub:    &stubExchanger{err: &apiclient.HTTPError{Status: 400, Message: "nope"}},
			message: "nope",
		},
		{
			name:    "transport text",
			stub:    &stubExchanger{err: &apiclient.TransportError{Method: "POST", URL: "http://x/", Err: errors.New("refused")}},
			message: "POST http://x/: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := Open(&MemoryStorage{}, nil)
			store.SetExchanger(tt.stub)

			err := store.Login(context.Background(), "u", "p")
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("Expected *AuthError, got %v", err)
			}
			if authErr.Message != tt.message {
				t.Errorf("Expected %q, got %q", tt.message, authErr.Message)
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("Expected %v in chain", tt.sentinel)
			}
			if store.State() != Anonymous {
				t.Error("State must stay Anonymous")
			}
			if tt.stub.path != apiclient.PathLogin {
				t.Errorf("Login posted to %q", tt.stub.path)
			}
		})
	}
}

func TestStorageFailures(t *testing.T) {
	storage := &failingStorage{saveErr: errors.New("disk full")}
	store, _ := Open(storage, nil)
	store.SetExchanger(&stubExchanger{resp: apiclient.TokenResponse{Token: "t1"}})

	if err := store.Login(context.Background(), "u", "p"); err == nil {
		t.Fatal("Expected storage failure")
	}
	if store.Token() != "" {
		t.Error("Token must not be held in memory when the write failed")
	}

	storage.saveErr = nil
	if err := store.Login(context.Background(), "u", "p"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	var seen []State
	store.Subscribe(func(st State) { seen = append(seen, st) })
	storage.deleteErr = errors.New("read only")
	if err := store.Logout(); err == nil {
		t.Fatal("Expected delete failure")
	}
	if store.State() != Anonymous || store.Token() != "" {
		t.Error("Logout must end the session even when the token cannot be deleted")
	}
	if len(seen) != 1 || seen[0] != Anonymous {
		t.Errorf("Listeners should hear about the logout, got %v", seen)
	}
}

func TestSubscribe(t *testing.T) {
	store, _ := Open(&MemoryStorage{}, nil)
	store.SetExchanger(&stubExchanger{resp: apiclient.TokenResponse{Token: "t1"}})

	var seen []State
	store.Subscribe(func(s State) { seen = append(seen, s) })

	store.Login(context.Background(), "u", "p")
	store.Logout()
	// a failed login does not notify
	store.SetExchanger(&stubExchanger{err: errors.New("boom")})
	store.Login(context.Background(), "u", "p")

	if len(seen) != 2 || seen[0] != Authenticated || seen[1] != Anonymous {
		t.Errorf("Unexpected notifications %v", seen)
	}
}

func TestTokenAttachedToLaterRequests(t *testing.T) {
	store, srv := newBackedStore(t, &MemoryStorage{})
	token := srv.AddUser("alice", "pw1")
	client := apiclient.New(apiclient.Options{BaseURL: srv.URL, Tokens: store})

	if err := store.Login(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := client.History(context.Background()); err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if got := srv.LastAuthorization(fakeapi.RouteHistory); got != "Token "+token {
		t.Errorf("Expected token header, got %q", got)
	}

	store.Logout()
	client.History(context.Background())
	if got := srv.LastAuthorization(fakeapi.RouteHistory); got != "" {
		t.Errorf("Logged out request should be anonymous, got %q", got)
	}
}
