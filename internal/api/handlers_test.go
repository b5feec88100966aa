package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailmirror/internal/store"
	mailsync "github.com/brandon/mailmirror/internal/sync"
	"github.com/brandon/mailmirror/pkg/types"
)

type fakeRunner struct {
	err    error
	lastID int64
}

func (f *fakeRunner) StartSync(ctx context.Context, accountID int64) (*mailsync.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastID = accountID
	return &mailsync.Run{ID: "run-1", AccountID: accountID}, nil
}

type fakeEncrypter struct{}

func (fakeEncrypter) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func newTestServer(t *testing.T, runner SyncStarter) (*Server, *store.Store) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := store.Open(":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.NewStore(db, logger)
	return NewServer(st, runner, fakeEncrypter{}, logger), st
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return m
}

func TestCreateAccountWithProviderPreset(t *testing.T) {
	srv, st := newTestServer(t, &fakeRunner{})
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/accounts",
		`{"email":"alice@gmail.com","provider":"gmail","app_password":"pw"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["imap_host"] != "imap.gmail.com" {
		t.Errorf("Expected gmail preset host, got %v", body["imap_host"])
	}
	if body["imap_security"] != "SSL/TLS" {
		t.Errorf("Expected preset security, got %v", body["imap_security"])
	}
	if _, leaked := body["app_password"]; leaked {
		t.Error("Credential must never appear in API responses")
	}

	// The stored credential is the encrypted blob, not the plaintext.
	acc, err := st.GetAccount(context.Background(), int64(body["id"].(float64)))
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if acc.AppPassword != "enc:pw" {
		t.Errorf("Expected encrypted credential at rest, got %q", acc.AppPassword)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})
	h := srv.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"missing email", `{"provider":"gmail","app_password":"pw"}`},
		{"missing password", `{"email":"a@b.c","provider":"gmail"}`},
		{"unknown provider", `{"email":"a@b.c","provider":"aol","app_password":"pw"}`},
		{"custom without endpoint", `{"email":"a@b.c","provider":"custom","app_password":"pw"}`},
		{"bad security", `{"email":"a@b.c","provider":"custom","imap_host":"h","imap_port":143,"imap_security":"TLSv0","app_password":"pw"}`},
		{"malformed json", `{"email":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, "POST", "/accounts", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestCreateAccountDuplicate(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})
	h := srv.Handler()

	body := `{"email":"alice@gmail.com","provider":"gmail","app_password":"pw"}`
	if rec := doJSON(t, h, "POST", "/accounts", body); rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	if rec := doJSON(t, h, "POST", "/accounts", body); rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate email, got %d", rec.Code)
	}
}

func TestListAccountsEmpty(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	rec := doJSON(t, srv.Handler(), "GET", "/accounts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	accounts, ok := body["accounts"].([]interface{})
	if !ok {
		t.Fatalf("Expected accounts array, got %v", body["accounts"])
	}
	if len(accounts) != 0 {
		t.Errorf("Expected empty array, got %d entries", len(accounts))
	}
}

func TestUpdateAccount(t *testing.T) {
	srv, st := newTestServer(t, &fakeRunner{})
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/accounts",
		`{"email":"alice@gmail.com","provider":"gmail","app_password":"pw"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	id := int64(decodeBody(t, rec)["id"].(float64))

	rec = doJSON(t, h, "PATCH", fmt.Sprintf("/accounts/%d", id),
		`{"display_name":"Personal","is_active":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	acc, err := st.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if acc.DisplayName != "Personal" || acc.IsActive {
		t.Errorf("Expected update applied, got name=%q active=%v", acc.DisplayName, acc.IsActive)
	}

	if rec := doJSON(t, h, "PATCH", fmt.Sprintf("/accounts/%d", id), `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty update, got %d", rec.Code)
	}
	if rec := doJSON(t, h, "PATCH", "/accounts/999", `{"display_name":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown account, got %d", rec.Code)
	}
}

func TestDeleteAccount(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/accounts",
		`{"email":"alice@gmail.com","provider":"gmail","app_password":"pw"}`)
	id := int64(decodeBody(t, rec)["id"].(float64))

	if rec := doJSON(t, h, "DELETE", fmt.Sprintf("/accounts/%d", id), ""); rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if rec := doJSON(t, h, "DELETE", fmt.Sprintf("/accounts/%d", id), ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on double delete, got %d", rec.Code)
	}
}

func TestTriggerSync(t *testing.T) {
	runner := &fakeRunner{}
	srv, st := newTestServer(t, runner)
	h := srv.Handler()

	id, err := st.CreateAccount(context.Background(), &types.Account{
		Email: "a@b.c", Provider: "custom",
		IMAPHost: "h", IMAPPort: 993, IMAPSecurity: "SSL/TLS", AppPassword: "blob",
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	rec := doJSON(t, h, "POST", fmt.Sprintf("/accounts/%d/sync", id), "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["run_id"] != "run-1" {
		t.Errorf("Expected run id in response, got %v", body["run_id"])
	}
	if runner.lastID != id {
		t.Errorf("Expected runner triggered for account %d, got %d", id, runner.lastID)
	}
}

func TestTriggerSyncErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already syncing", mailsync.ErrSyncInProgress, http.StatusConflict},
		{"unknown account", store.ErrAccountNotFound, http.StatusNotFound},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &fakeRunner{err: tt.err})
			rec := doJSON(t, srv.Handler(), "POST", "/accounts/1/sync", "")
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestSyncProgressWithoutActiveRun(t *testing.T) {
	srv, st := newTestServer(t, &fakeRunner{})
	ctx := context.Background()

	id, err := st.CreateAccount(ctx, &types.Account{
		Email: "a@b.c", Provider: "custom",
		IMAPHost: "h", IMAPPort: 993, IMAPSecurity: "SSL/TLS", AppPassword: "blob",
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	rec := doJSON(t, srv.Handler(), "GET", fmt.Sprintf("/accounts/%d/progress", id), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	progress := body["progress"].(map[string]interface{})
	if progress["sync_status"] != "pending" {
		t.Errorf("Expected pending status, got %v", progress["sync_status"])
	}
	if _, ok := progress["estimated_time_remaining"]; ok {
		t.Error("Expected no ETA without an active run")
	}
}

func TestSyncProgressDuringRun(t *testing.T) {
	srv, st := newTestServer(t, &fakeRunner{})
	ctx := context.Background()

	id, err := st.CreateAccount(ctx, &types.Account{
		Email: "a@b.c", Provider: "custom",
		IMAPHost: "h", IMAPPort: 993, IMAPSecurity: "SSL/TLS", AppPassword: "blob",
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if _, err := st.BeginSync(ctx, id); err != nil {
		t.Fatalf("BeginSync failed: %v", err)
	}
	if err := st.StartSyncProgress(ctx, id, 200); err != nil {
		t.Fatalf("StartSyncProgress failed: %v", err)
	}
	if err := st.UpdateSyncProgress(ctx, id, 50, "Newsletter"); err != nil {
		t.Fatalf("UpdateSyncProgress failed: %v", err)
	}

	rec := doJSON(t, srv.Handler(), "GET", fmt.Sprintf("/accounts/%d/progress", id), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	progress := decodeBody(t, rec)["progress"].(map[string]interface{})
	if progress["sync_status"] != "syncing" {
		t.Errorf("Expected syncing status, got %v", progress["sync_status"])
	}
	if progress["total_emails"].(float64) != 200 || progress["processed_emails"].(float64) != 50 {
		t.Errorf("Expected 50/200, got %v/%v", progress["processed_emails"], progress["total_emails"])
	}
	if progress["percentage"].(float64) != 25 {
		t.Errorf("Expected 25 percent, got %v", progress["percentage"])
	}
	if progress["current_email_subject"] != "Newsletter" {
		t.Errorf("Expected current subject, got %v", progress["current_email_subject"])
	}
}

func TestSyncProgressUnknownAccount(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})
	rec := doJSON(t, srv.Handler(), "GET", "/accounts/999/progress", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestEstimateRemaining(t *testing.T) {
	now := time.Now()

	// 50 of 100 processed in 50 seconds: one per second, 50 to go.
	p := &types.SyncProgress{TotalEmails: 100, ProcessedEmails: 50, StartedAt: now.Add(-50 * time.Second)}
	got := estimateRemaining(p, now)
	if got == nil || *got != 50 {
		t.Errorf("Expected 50 seconds remaining, got %v", got)
	}

	// Nothing processed yet: no measurable rate.
	p = &types.SyncProgress{TotalEmails: 100, StartedAt: now.Add(-time.Second)}
	if got := estimateRemaining(p, now); got != nil {
		t.Errorf("Expected nil before first processed email, got %v", got)
	}

	// Done processing: never negative.
	p = &types.SyncProgress{TotalEmails: 100, ProcessedEmails: 100, StartedAt: now.Add(-10 * time.Second)}
	if got := estimateRemaining(p, now); got == nil || *got != 0 {
		t.Errorf("Expected 0 seconds at the end, got %v", got)
	}
}

func TestListEmailsPagination(t *testing.T) {
	srv, st := newTestServer(t, &fakeRunner{})
	ctx := context.Background()

	id, err := st.CreateAccount(ctx, &types.Account{
		Email: "a@b.c", Provider: "custom",
		IMAPHost: "h", IMAPPort: 993, IMAPSecurity: "SSL/TLS", AppPassword: "blob",
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var batch []*types.Email
	for i := 1; i <= 5; i++ {
		batch = append(batch, &types.Email{
			AccountID: id, UID: uint32(i), UniqueID: fmt.Sprintf("%d:%d", id, i),
			Subject: fmt.Sprintf("Message %d", i), InternalDate: base.Add(time.Duration(i) * time.Hour),
			ThreadPosition: 1, IsFirstInThread: true,
		})
	}
	if err := st.InsertEmailBatch(ctx, batch); err != nil {
		t.Fatalf("InsertEmailBatch failed: %v", err)
	}

	rec := doJSON(t, srv.Handler(), "GET", fmt.Sprintf("/accounts/%d/emails?limit=2&offset=1", id), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	emails := body["emails"].([]interface{})
	if len(emails) != 2 {
		t.Fatalf("Expected 2 emails, got %d", len(emails))
	}
	if body["total"].(float64) != 5 {
		t.Errorf("Expected total 5, got %v", body["total"])
	}
	// Newest first with offset 1: message 4 leads the page.
	first := emails[0].(map[string]interface{})
	if first["subject"] != "Message 4" {
		t.Errorf("Expected Message 4 first, got %v", first["subject"])
	}
}

func TestListEmailsUnknownAccount(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})
	rec := doJSON(t, srv.Handler(), "GET", "/accounts/999/emails", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestAccountIDValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})
	h := srv.Handler()

	for _, path := range []string{"/accounts/abc/sync", "/accounts/0/sync", "/accounts/-1/sync"} {
		rec := doJSON(t, h, "POST", path, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %s, got %d", path, rec.Code)
		}
	}
}
