package domain

import "time"

type Revocation struct {
	ID            string    `json:"id,omitempty"`
	AttestationID string    `json:"attestationId"`
	Issuer        string    `json:"issuer"`
	Reason        string    `json:"reason,omitempty"`
	RevokedAt     time.Time `json:"revokedAt"`
	CreatedAt     time.Time `json:"createdAt"`
}
