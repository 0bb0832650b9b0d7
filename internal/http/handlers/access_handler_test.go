package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mgrigorov/go-logsearch-backend/internal/domain"
	"github.com/mgrigorov/go-logsearch-backend/internal/services"
)

// ----- Fakes -----

type fakeEntSvc struct {
	issueCodes []string
	issueErr   error

	redeemExp time.Time
	redeemErr error

	active    bool
	activeErr error
	expiry    *time.Time
	expiryErr error

	listItems []domain.Entitlement
	listErr   error
	listLimit int

	recipients []string
	recErr     error
}

func (f *fakeEntSvc) IssueKeys(_ context.Context, days, count int) ([]string, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	return f.issueCodes, nil
}

func (f *fakeEntSvc) Redeem(_ context.Context, userID, code string) (time.Time, error) {
	if f.redeemErr != nil {
		return time.Time{}, f.redeemErr
	}
	return f.redeemExp, nil
}

func (f *fakeEntSvc) GetExpiry(_ context.Context, userID string) (*time.Time, error) {
	return f.expiry, f.expiryErr
}

func (f *fakeEntSvc) HasActiveEntitlement(_ context.Context, userID string) (bool, error) {
	if f.activeErr != nil {
		return false, f.activeErr
	}
	return f.active, nil
}

func (f *fakeEntSvc) ListActive(_ context.Context, limit int) ([]domain.Entitlement, error) {
	f.listLimit = limit
	return f.listItems, f.listErr
}

func (f *fakeEntSvc) ListUsersWithEntitlementAfter(_ context.Context, _ time.Time) ([]string, error) {
	return f.recipients, f.recErr
}

type fakeSearchSvc struct {
	page      *services.Page
	searchErr error
	moreErr   error

	reloadN   int
	reloadErr error
}

func (f *fakeSearchSvc) Search(_ context.Context, userID, keyword string) (*services.Page, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.page, nil
}

func (f *fakeSearchSvc) More(_ context.Context, userID, keyword string) (*services.Page, error) {
	if f.moreErr != nil {
		return nil, f.moreErr
	}
	return f.page, nil
}

func (f *fakeSearchSvc) ReloadCorpus(_ context.Context) (int, error) {
	return f.reloadN, f.reloadErr
}

// newTestRouter wires the handlers onto a bare gin engine; no middleware
// beyond a request id for envelope assertions.
func newTestRouter(ent EntitlementService, search SearchEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(ent, search)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-test")
		c.Next()
	})
	r.POST("/keys/redeem", h.RedeemKey)
	r.GET("/access", h.GetAccess)
	r.POST("/search", h.Search)
	r.POST("/search/more", h.SearchMore)
	r.POST("/admin/keys", h.IssueKeys)
	r.GET("/admin/entitlements", h.ListEntitlements)
	r.GET("/admin/broadcast/recipients", h.BroadcastRecipients)
	r.POST("/admin/corpus/reload", h.ReloadCorpus)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, w.Body.String())
	}
	return er
}

// ----- RedeemKey -----

func TestRedeemKey_Success(t *testing.T) {
	exp := time.Date(2026, 9, 4, 12, 0, 0, 0, time.UTC)
	ent := &fakeEntSvc{redeemExp: exp}
	r := newTestRouter(ent, &fakeSearchSvc{})

	w := doJSON(t, r, http.MethodPost, "/keys/redeem", "u1", RedeemKeyRequest{Code: "KEY-123456"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp RedeemKeyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UserID != "u1" || !resp.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestRedeemKey_MissingUser(t *testing.T) {
	r := newTestRouter(&fakeEntSvc{}, &fakeSearchSvc{})
	w := doJSON(t, r, http.MethodPost, "/keys/redeem", "", RedeemKeyRequest{Code: "KEY-123456"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if er := decodeErr(t, w); er.Code != ErrCodeBadRequest {
		t.Fatalf("code=%q", er.Code)
	}
}

func TestRedeemKey_BlankCode(t *testing.T) {
	r := newTestRouter(&fakeEntSvc{}, &fakeSearchSvc{})
	w := doJSON(t, r, http.MethodPost, "/keys/redeem", "u1", map[string]string{"code": "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestRedeemKey_InvalidOrUsed(t *testing.T) {
	ent := &fakeEntSvc{redeemErr: services.ErrInvalidOrUsedKey}
	r := newTestRouter(ent, &fakeSearchSvc{})

	w := doJSON(t, r, http.MethodPost, "/keys/redeem", "u1", RedeemKeyRequest{Code: "KEY-000000"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	if er := decodeErr(t, w); er.Code != ErrCodeInvalidOrUsedKey {
		t.Fatalf("code=%q", er.Code)
	}
}

func TestRedeemKey_StoreUnavailable(t *testing.T) {
	ent := &fakeEntSvc{redeemErr: errors.New("disk on fire")}
	r := newTestRouter(ent, &fakeSearchSvc{})

	w := doJSON(t, r, http.MethodPost, "/keys/redeem", "u1", RedeemKeyRequest{Code: "KEY-000000"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if er := decodeErr(t, w); er.Code != ErrCodeStoreUnavailable {
		t.Fatalf("code=%q", er.Code)
	}
}

// ----- GetAccess -----

func TestGetAccess_ActiveWithExpiry(t *testing.T) {
	exp := time.Date(2026, 9, 4, 12, 0, 0, 0, time.UTC)
	ent := &fakeEntSvc{active: true, expiry: &exp}
	r := newTestRouter(ent, &fakeSearchSvc{})

	w := doJSON(t, r, http.MethodGet, "/access", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp AccessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Active || resp.ExpiresAt == nil || !resp.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestGetAccess_Inactive(t *testing.T) {
	r := newTestRouter(&fakeEntSvc{active: false}, &fakeSearchSvc{})

	w := doJSON(t, r, http.MethodGet, "/access", "ghost", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp AccessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Active || resp.ExpiresAt != nil {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestGetAccess_StoreUnavailable(t *testing.T) {
	r := newTestRouter(&fakeEntSvc{activeErr: errors.New("locked")}, &fakeSearchSvc{})
	w := doJSON(t, r, http.MethodGet, "/access", "u1", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}
