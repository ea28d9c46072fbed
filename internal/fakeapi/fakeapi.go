// Package fakeapi is an in-process stand-in for the equipment backend. It
// implements the token auth, upload, history, summary and PDF endpoints with
// the same status codes and error bodies, and counts the calls it receives.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/chemviz/chemviz/pkg/models"
)

// Route names used by Hits and LastAuthorization
const (
	RouteLogin    = "login"
	RouteRegister = "register"
	RouteHistory  = "history"
	RouteUpload   = "upload"
	RouteSummary  = "summary"
	RouteReport   = "report"
	RouteMedia    = "media"
)

// HistoryLimit mirrors the backend, which only returns the newest uploads
const HistoryLimit = 5

// HistoryShape selects how the history endpoint encodes its body
type HistoryShape int

const (
	HistoryList HistoryShape = iota
	HistorySingleObject
	HistoryNull
)

type dataset struct {
	ID         int64
	Name       string
	UploadedAt time.Time
	File       string
	CSV        []byte
	Summary    *models.Summary
}

// Server is a running fake backend
type Server struct {
	URL string

	mu            sync.Mutex
	users         map[string][]byte
	tokens        map[string]string
	userTokens    map[string]string
	datasets      []*dataset
	nextID        int64
	hits          map[string]int
	lastAuth      map[string]string
	historyShape  HistoryShape
	historyStatus int
	omitSummary   bool
	clock         func() time.Time

	httpServer *httptest.Server
}

// Start launches a fake backend on a loopback port
func Start() *Server {
	s := &Server{
		users:      make(map[string][]byte),
		tokens:     make(map[string]string),
		userTokens: make(map[string]string),
		hits:       make(map[string]int),
		lastAuth:   make(map[string]string),
		nextID:     1,
		clock:      time.Now,
	}
	s.httpServer = httptest.NewServer(s.routes())
	s.URL = s.httpServer.URL
	return s
}

// Close shuts the server down
func (s *Server) Close() {
	s.httpServer.Close()
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/api-token-auth/", s.track(RouteLogin, s.handleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/register/", s.track(RouteRegister, s.handleRegister)).Methods(http.MethodPost)
	api.HandleFunc("/history/", s.track(RouteHistory, s.requireToken(s.handleHistory))).Methods(http.MethodGet)
	api.HandleFunc("/upload/", s.track(RouteUpload, s.requireToken(s.handleUpload))).Methods(http.MethodPost)
	api.HandleFunc("/summary/{id:[0-9]+}/", s.track(RouteSummary, s.requireToken(s.handleSummary))).Methods(http.MethodGet)
	api.HandleFunc("/generate_pdf/{id:[0-9]+}/", s.track(RouteReport, s.requireToken(s.handleReport))).Methods(http.MethodGet)

	r.HandleFunc("/media/uploads/{file}", s.track(RouteMedia, s.handleMedia)).Methods(http.MethodGet)
	return r
}

// AddUser registers a user directly and returns its token
func (s *Server) AddUser(username, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("fakeapi: hash password: %v", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = hash
	return s.tokenForLocked(username)
}

// Hits returns how many requests a route has served
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// LastAuthorization returns the Authorization header of the latest request on a route
func (s *Server) LastAuthorization(route string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth[route]
}

// SetHistoryShape changes how the history body is encoded
func (s *Server) SetHistoryShape(shape HistoryShape) {
	s.mu.Lock()
	s.historyShape = shape
	s.mu.Unlock()
}

// FailHistory makes the history endpoint answer with status (0 restores normal behaviour)
func (s *Server) FailHistory(status int) {
	s.mu.Lock()
	s.historyStatus = status
	s.mu.Unlock()
}

// OmitUploadSummary drops the summary field from upload responses
func (s *Server) OmitUploadSummary(omit bool) {
	s.mu.Lock()
	s.omitSummary = omit
	s.mu.Unlock()
}

// DropCSV forgets the stored file of a dataset so its csv_url becomes null
func (s *Server) DropCSV(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.findLocked(id); d != nil {
		d.File = ""
		d.CSV = nil
	}
}

func (s *Server) track(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[route]++
		s.lastAuth[route] = r.Header.Get("Authorization")
		s.mu.Unlock()
		next(w, r)
	}
}

func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		token, ok := strings.CutPrefix(header, "Token ")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token header."})
			return
		}
		s.mu.Lock()
		_, known := s.tokens[token]
		s.mu.Unlock()
		if !known {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Must include \"username\" and \"password\"."}})
		return
	}

	s.mu.Lock()
	hash, ok := s.users[username]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Unable to log in with provided credentials."}})
		return
	}

	s.mu.Lock()
	token := s.tokenForLocked(username)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password required"})
		return
	}

	s.mu.Lock()
	_, exists := s.users[username]
	s.mu.Unlock()
	if exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username already exists"})
		return
	}

	token := s.AddUser(username, password)
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (s *Server) tokenForLocked(username string) string {
	if token, ok := s.userTokens[username]; ok {
		return token
	}
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	s.userTokens[username] = token
	s.tokens[token] = username
	return token
}

func (s *Server) findLocked(id int64) *dataset {
	for _, d := range s.datasets {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
