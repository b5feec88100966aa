// Package api exposes the aggregator's HTTP surface: account registration and
// management, the sync trigger, and the stateless progress poll.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailmirror/internal/store"
	mailsync "github.com/brandon/mailmirror/internal/sync"
)

// SyncStarter triggers background sync runs.
type SyncStarter interface {
	StartSync(ctx context.Context, accountID int64) (*mailsync.Run, error)
}

// Encrypter protects credentials before they reach storage.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Server is the HTTP API server
type Server struct {
	store   *store.Store
	runner  SyncStarter
	secrets Encrypter
	logger  *logrus.Logger
}

// NewServer creates a new API server
func NewServer(st *store.Store, runner SyncStarter, secrets Encrypter, logger *logrus.Logger) *Server {
	return &Server{
		store:   st,
		runner:  runner,
		secrets: secrets,
		logger:  logger,
	}
}

// Handler returns the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("PATCH /accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /accounts/{id}", s.handleDeleteAccount)
	mux.HandleFunc("POST /accounts/{id}/sync", s.handleTriggerSync)
	mux.HandleFunc("GET /accounts/{id}/progress", s.handleSyncProgress)
	mux.HandleFunc("GET /accounts/{id}/emails", s.handleListEmails)
	return mux
}

// accountID parses the {id} path segment.
func accountID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
