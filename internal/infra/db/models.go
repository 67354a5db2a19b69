package db

import "time"

type ApplicationModel struct {
	RenterID              string    `gorm:"primaryKey"`
	PropertyID            string    `gorm:"index"`
	Status                string    `gorm:"index;not null"`
	IncomeProofValid      bool      `gorm:"not null"`
	CreditScoreProofValid bool      `gorm:"not null"`
	Details               string    `gorm:"type:text"`
	CreatedAt             time.Time `gorm:"not null"`
	UpdatedAt             time.Time `gorm:"not null"`
}

func (ApplicationModel) TableName() string { return "rental_applications" }

type PropertyModel struct {
	ID            string `gorm:"primaryKey"`
	LandlordID    string `gorm:"index;not null"`
	Title         string `gorm:"not null"`
	Description   string `gorm:"type:text;not null"`
	Street        string
	City          string `gorm:"index"`
	State         string
	ZipCode       string
	Price         float64
	Bedrooms      int
	Bathrooms     float64
	SquareFeet    int
	AmenitiesJSON string    `gorm:"type:text"`
	ImagesJSON    string    `gorm:"type:text"`
	MinimumIncome int64     `gorm:"not null"`
	IsAvailable   bool      `gorm:"index;not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (PropertyModel) TableName() string { return "properties" }

// SubjectModel is one subject as seen by one issuer. Issuers sharing a
// database keep separate histories.
type SubjectModel struct {
	Issuer    string    `gorm:"primaryKey"`
	SubjectID string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (SubjectModel) TableName() string { return "issuer_subjects" }

type AttestationRecordModel struct {
	ID         string `gorm:"primaryKey"`
	SubjectID  string `gorm:"index:idx_attestation_records_subject,priority:2;not null"`
	Issuer     string `gorm:"index:idx_attestation_records_subject,priority:1;not null"`
	ClaimType  string `gorm:"not null"`
	Value      int64  `gorm:"not null"`
	Currency   string
	Commitment string    `gorm:"not null"`
	Signature  string    `gorm:"type:text;not null"`
	IssuedAt   time.Time `gorm:"index;not null"`
	ExpiresAt  time.Time `gorm:"not null"`
	RecordedAt time.Time `gorm:"not null"`
}

func (AttestationRecordModel) TableName() string { return "attestation_records" }

type RevocationModel struct {
	ID            string `gorm:"primaryKey"`
	AttestationID string `gorm:"uniqueIndex:idx_revocation_attestation;not null"`
	Issuer        string `gorm:"uniqueIndex:idx_revocation_attestation;not null"`
	Reason        string
	RevokedAt     time.Time `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (RevocationModel) TableName() string { return "revocations" }

type RevocationEpochModel struct {
	Issuer    string    `gorm:"primaryKey"`
	Epoch     int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (RevocationEpochModel) TableName() string { return "revocation_epochs" }

type AuditEventModel struct {
	ID          string    `gorm:"primaryKey"`
	Stream      string    `gorm:"uniqueIndex:idx_audit_stream_seq;not null"`
	Seq         int64     `gorm:"uniqueIndex:idx_audit_stream_seq;not null"`
	EventType   string    `gorm:"not null"`
	Subject     string    `gorm:"index"`
	PayloadJSON string    `gorm:"type:text;not null"`
	PayloadHash string    `gorm:"not null"`
	PrevHash    string    `gorm:"not null"`
	Hash        string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (AuditEventModel) TableName() string { return "audit_events" }

// AuditStreamModel serializes appends per stream and remembers the head.
type AuditStreamModel struct {
	Stream   string `gorm:"primaryKey"`
	Seq      int64  `gorm:"not null;default:0"`
	HeadHash string `gorm:"not null"`
}

func (AuditStreamModel) TableName() string { return "audit_streams" }
