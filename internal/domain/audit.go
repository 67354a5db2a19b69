package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

const AuditChainVersion = "zkrent.audit.v1"

// ZeroAuditHash is the previous hash of the first event in a stream.
const ZeroAuditHash = "0000000000000000000000000000000000000000000000000000000000000000"

type AuditEventType string

const (
	AuditAttestationRevoked AuditEventType = "attestation.revoked"
	AuditApplicationDecided AuditEventType = "application.decided"
)

// AuditStreamDecisions holds every recorded application decision.
const AuditStreamDecisions = "decisions"

// AuditStreamRevocations is the per-issuer revocation stream.
func AuditStreamRevocations(issuer string) string {
	return "revocations/" + issuer
}

// AuditEvent is one link of an append-only, hash-chained stream. Payload is
// the canonical JSON the PayloadHash was computed over.
type AuditEvent struct {
	ID          string          `json:"id"`
	Stream      string          `json:"stream"`
	Seq         int64           `json:"seq"`
	Type        AuditEventType  `json:"type"`
	Subject     string          `json:"subject,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	PayloadHash string          `json:"payloadHash"`
	PrevHash    string          `json:"prevHash"`
	Hash        string          `json:"hash"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// chainLink fixes the hashed fields; declaration order is the key order of
// the hashed JSON.
type chainLink struct {
	CreatedAt   string `json:"created_at"`
	PayloadHash string `json:"payload_hash"`
	PrevHash    string `json:"prev_hash"`
	Seq         int64  `json:"seq"`
	Stream      string `json:"stream"`
	Subject     string `json:"subject"`
	Type        string `json:"type"`
	Version     string `json:"v"`
}

// ChainHash is the hash stored in Hash once Seq, PrevHash, PayloadHash and
// CreatedAt are set.
func (e AuditEvent) ChainHash() string {
	link, _ := json.Marshal(chainLink{
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339Nano),
		PayloadHash: e.PayloadHash,
		PrevHash:    e.PrevHash,
		Seq:         e.Seq,
		Stream:      e.Stream,
		Subject:     e.Subject,
		Type:        string(e.Type),
		Version:     AuditChainVersion,
	})
	return SHA256Hex(link)
}

func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// AuditChainStatus summarizes a verified stream.
type AuditChainStatus struct {
	Stream string `json:"stream"`
	Length int64  `json:"length"`
	Head   string `json:"head"`
}
