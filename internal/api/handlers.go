package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/brandon/mailmirror/internal/mailbox"
	"github.com/brandon/mailmirror/internal/store"
	mailsync "github.com/brandon/mailmirror/internal/sync"
	"github.com/brandon/mailmirror/pkg/types"
)

type createAccountRequest struct {
	Email        string `json:"email"`
	Provider     string `json:"provider"`
	DisplayName  string `json:"display_name"`
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPSecurity string `json:"imap_security"`
	AppPassword  string `json:"app_password"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.AppPassword == "" {
		s.writeError(w, http.StatusBadRequest, "email and app_password are required")
		return
	}

	preset, ok := Providers[req.Provider]
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}
	if req.IMAPHost == "" {
		req.IMAPHost = preset.IMAPHost
	}
	if req.IMAPPort == 0 {
		req.IMAPPort = preset.IMAPPort
	}
	if req.IMAPSecurity == "" {
		req.IMAPSecurity = preset.IMAPSecurity
	}
	if req.IMAPHost == "" || req.IMAPPort == 0 {
		s.writeError(w, http.StatusBadRequest, "imap_host and imap_port are required for custom providers")
		return
	}
	switch req.IMAPSecurity {
	case mailbox.SecuritySSLTLS, mailbox.SecurityStartTLS, mailbox.SecurityNone:
	default:
		s.writeError(w, http.StatusBadRequest, "invalid imap_security")
		return
	}

	encrypted, err := s.secrets.Encrypt(req.AppPassword)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encrypt credential")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	acc := &types.Account{
		Email:        req.Email,
		Provider:     req.Provider,
		DisplayName:  req.DisplayName,
		IMAPHost:     req.IMAPHost,
		IMAPPort:     req.IMAPPort,
		IMAPSecurity: req.IMAPSecurity,
		AppPassword:  encrypted,
	}

	id, err := s.store.CreateAccount(r.Context(), acc)
	if err != nil {
		s.logger.WithError(err).Error("Failed to create account")
		s.writeError(w, http.StatusConflict, "account already exists or could not be created")
		return
	}

	created, err := s.store.GetAccount(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load created account")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list accounts")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if accounts == nil {
		accounts = []types.Account{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

type updateAccountRequest struct {
	DisplayName *string `json:"display_name"`
	IsActive    *bool   `json:"is_active"`
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DisplayName == nil && req.IsActive == nil {
		s.writeError(w, http.StatusBadRequest, "no valid updates provided")
		return
	}

	if err := s.store.UpdateAccount(r.Context(), id, req.DisplayName, req.IsActive); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			s.writeError(w, http.StatusNotFound, "account not found")
			return
		}
		s.logger.WithError(err).Error("Failed to update account")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "account updated"})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	if err := s.store.DeleteAccount(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			s.writeError(w, http.StatusNotFound, "account not found")
			return
		}
		s.logger.WithError(err).Error("Failed to delete account")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	run, err := s.runner.StartSync(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAccountNotFound):
			s.writeError(w, http.StatusNotFound, "account not found")
		case errors.Is(err, mailsync.ErrSyncInProgress):
			s.writeError(w, http.StatusConflict, "sync already in progress")
		default:
			s.logger.WithError(err).Error("Failed to start sync")
			s.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":    "sync started",
		"account_id": id,
		"run_id":     run.ID,
	})
}

type progressResponse struct {
	AccountID           int64      `json:"account_id"`
	SyncStatus          string     `json:"sync_status"`
	SyncError           string     `json:"sync_error,omitempty"`
	TotalEmails         int        `json:"total_emails"`
	ProcessedEmails     int        `json:"processed_emails"`
	CurrentEmailSubject string     `json:"current_email_subject,omitempty"`
	Percentage          int        `json:"percentage"`
	// EstimatedTimeRemaining is in seconds, present only while syncing.
	EstimatedTimeRemaining *int       `json:"estimated_time_remaining,omitempty"`
	LastSync               *time.Time `json:"last_sync,omitempty"`
}

func (s *Server) handleSyncProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	account, err := s.store.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			s.writeError(w, http.StatusNotFound, "account not found")
			return
		}
		s.logger.WithError(err).Error("Failed to load account")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := progressResponse{
		AccountID:       id,
		SyncStatus:      account.SyncStatus,
		SyncError:       account.SyncError,
		TotalEmails:     account.TotalEmails,
		ProcessedEmails: account.SyncedEmails,
		Percentage:      account.SyncProgress,
		LastSync:        account.LastSync,
	}

	progress, err := s.store.GetSyncProgress(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load sync progress")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if progress != nil {
		resp.TotalEmails = progress.TotalEmails
		resp.ProcessedEmails = progress.ProcessedEmails
		resp.CurrentEmailSubject = progress.CurrentEmailSubject
		if progress.TotalEmails > 0 {
			resp.Percentage = int(math.Round(float64(progress.ProcessedEmails) / float64(progress.TotalEmails) * 100))
		}
		resp.EstimatedTimeRemaining = estimateRemaining(progress, time.Now())
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"progress": resp})
}

// estimateRemaining projects the remaining seconds from the processing rate
// so far. Nil when no rate is measurable yet.
func estimateRemaining(p *types.SyncProgress, now time.Time) *int {
	if p.ProcessedEmails <= 0 || p.StartedAt.IsZero() {
		return nil
	}
	elapsed := now.Sub(p.StartedAt).Seconds()
	if elapsed <= 0 {
		return nil
	}
	rate := float64(p.ProcessedEmails) / elapsed
	if rate <= 0 {
		return nil
	}
	remaining := int(math.Ceil(float64(p.TotalEmails-p.ProcessedEmails) / rate))
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

func (s *Server) handleListEmails(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	if _, err := s.store.GetAccount(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			s.writeError(w, http.StatusNotFound, "account not found")
			return
		}
		s.logger.WithError(err).Error("Failed to load account")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	emails, err := s.store.ListEmails(r.Context(), id, limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list emails")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if emails == nil {
		emails = []types.Email{}
	}

	total, err := s.store.CountEmailsForAccount(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("Failed to count emails")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"emails": emails,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
