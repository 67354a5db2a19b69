package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"zkrent/internal/domain"
	"zkrent/internal/infra/auth/rbac"
	"zkrent/internal/infra/db"
	"zkrent/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
)

func newAuditStore(t *testing.T, name string) *db.Store {
	t.Helper()
	store, err := db.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), true)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func decodeTrail(t *testing.T, raw []byte) auditTrailResponse {
	t.Helper()
	var out auditTrailResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode trail %q: %v", raw, err)
	}
	return out
}

func TestRevocationAudit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newAuditStore(t, "http_revocation_audit")
	revocations := usecase.NewRevocationService(store.Revocations, store.Epochs)
	revocations.Audit = store.Audit
	srv := NewServerWithDeps(testConfig("none"), ServerDeps{Revocations: revocations, Logger: zerolog.Nop()})

	rec := doRequest(t, srv, http.MethodGet, "/revocations/audit/employer", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	trail := decodeTrail(t, rec.Body.Bytes())
	if trail.Length != 0 || trail.Head != domain.ZeroAuditHash || trail.Events == nil {
		t.Fatalf("unexpected empty trail %+v", trail)
	}

	for _, id := range []string{"att-1", "att-2"} {
		rec = doRequest(t, srv, http.MethodPost, "/revocations",
			map[string]string{"attestationId": id, "issuer": "employer"},
			map[string]string{"X-Admin-Key": testAdminKey})
		if rec.Code != http.StatusCreated {
			t.Fatalf("revoke %s: %d %s", id, rec.Code, rec.Body.String())
		}
	}

	rec = doRequest(t, srv, http.MethodGet, "/revocations/audit/employer", nil, nil)
	trail = decodeTrail(t, rec.Body.Bytes())
	if trail.Length != 2 || len(trail.Events) != 2 || trail.Head != trail.Events[1].Hash {
		t.Fatalf("unexpected trail %+v", trail)
	}
	if trail.Events[1].PrevHash != trail.Events[0].Hash {
		t.Fatalf("expected linked events")
	}

	if err := store.DB.Model(&db.AuditEventModel{}).
		Where("seq = ?", 1).
		Update("subject", "att-9").Error; err != nil {
		t.Fatalf("tamper: %v", err)
	}
	rec = doRequest(t, srv, http.MethodGet, "/revocations/audit/employer", nil, nil)
	if rec.Code != http.StatusConflict || decodeError(t, rec).Code != "AUDIT_CHAIN_BROKEN" {
		t.Fatalf("expected 409 AUDIT_CHAIN_BROKEN, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDecisionAudit_RequiresAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newAuditStore(t, "http_decision_audit")
	if _, err := store.Audit.Append(context.Background(), domain.AuditStreamDecisions, domain.AuditApplicationDecided, "renter-1",
		map[string]string{"status": "approved"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	srv := NewServerWithDeps(testConfig("jwt"), ServerDeps{
		Applications: &usecase.ApplicationService{Audit: store.Audit},
		Logger:       zerolog.Nop(),
	})

	rec := doRequest(t, srv, http.MethodGet, "/audit/decisions", nil, map[string]string{
		"Authorization": mintToken(t, "landlord-1", []string{rbac.RoleLandlord}, nil),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for landlord, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/audit/decisions", nil, map[string]string{"X-Admin-Key": testAdminKey})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	trail := decodeTrail(t, rec.Body.Bytes())
	if trail.Stream != domain.AuditStreamDecisions || trail.Length != 1 || trail.Events[0].Subject != "renter-1" {
		t.Fatalf("unexpected trail %+v", trail)
	}
}
