package db

import (
	"context"
	"testing"

	"zkrent/internal/domain"
	"zkrent/internal/usecase"
)

func TestAuditLogRepository_AppendLinksStream(t *testing.T) {
	store := newTestStore(t)
	repo := store.Audit
	ctx := context.Background()

	first, err := repo.Append(ctx, "decisions", domain.AuditApplicationDecided, "renter-1", map[string]any{
		"status":   "approved",
		"renterId": "renter-1",
	})
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	if first.Seq != 1 || first.PrevHash != domain.ZeroAuditHash {
		t.Fatalf("unexpected first event %+v", first)
	}
	if string(first.Payload) != `{"renterId":"renter-1","status":"approved"}` {
		t.Fatalf("expected canonical payload, got %s", first.Payload)
	}

	if _, err := repo.Append(ctx, domain.AuditStreamRevocations("employer"), domain.AuditAttestationRevoked, "att-1", nil); err != nil {
		t.Fatalf("append other stream: %v", err)
	}

	second, err := repo.Append(ctx, "decisions", domain.AuditApplicationDecided, "renter-2", map[string]any{"status": "rejected"})
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.Seq != 2 || second.PrevHash != first.Hash {
		t.Fatalf("expected second event linked to first, got %+v", second)
	}

	events, err := repo.List(ctx, "decisions")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 || events[0].ID != first.ID || events[1].ID != second.ID {
		t.Fatalf("unexpected events %+v", events)
	}

	status, err := usecase.VerifyAuditChain(ctx, repo, "decisions")
	if err != nil {
		t.Fatalf("verify stored chain: %v", err)
	}
	if status.Length != 2 || status.Head != second.Hash {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestAuditLogRepository_TamperedRowBreaksChain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"att-1", "att-2"} {
		if _, err := store.Audit.Append(ctx, "revocations/bank", domain.AuditAttestationRevoked, id, map[string]string{"attestationId": id}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := store.DB.Model(&AuditEventModel{}).
		Where("stream = ? AND seq = ?", "revocations/bank", 1).
		Update("payload_json", `{"attestationId":"att-9"}`).Error; err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := usecase.VerifyAuditChain(ctx, store.Audit, "revocations/bank"); err == nil {
		t.Fatalf("expected tampered chain to fail verification")
	}
}

func TestAuditLogRepository_RequiresStreamAndType(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Audit.Append(context.Background(), "", domain.AuditApplicationDecided, "", nil); err == nil {
		t.Fatalf("expected stream to be required")
	}
	if _, err := store.Audit.Append(context.Background(), "decisions", "", "", nil); err == nil {
		t.Fatalf("expected event type to be required")
	}
}
