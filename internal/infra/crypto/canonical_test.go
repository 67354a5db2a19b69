package crypto

import (
	"testing"
	"time"

	"zkrent/internal/domain"
)

func TestCanonicalizeJSON_SortsKeysAndStripsWhitespace(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`{ "b": [1, 2.5, "x"], "a": {"d": null, "c": true} }`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"a":{"c":true,"d":null},"b":[1,2.5,"x"]}`
	if string(got) != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestCanonicalizeJSON_IntegersExact(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`{"v":9007199254740993,"f":1e21,"s":1E-7,"z":-0}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"f":1e+21,"s":1e-7,"v":9007199254740993,"z":0}`
	if string(got) != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestCanonicalizeJSON_RejectsTrailingData(t *testing.T) {
	if _, err := CanonicalizeJSON([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestCanonicalize_StructIsStableAcrossFieldOrder(t *testing.T) {
	issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	att := domain.Attestation{
		ID:         "att-1",
		Issuer:     "employer",
		SubjectID:  "renter-1",
		ClaimType:  domain.ClaimIncome,
		Value:      4200,
		Currency:   "EUR",
		Commitment: "123",
		IssuedAt:   issued,
		ExpiresAt:  issued.Add(domain.AttestationValidity),
	}
	first, err := Canonicalize(att)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	reordered, err := CanonicalizeJSON([]byte(`{"value":4200,"subjectId":"renter-1","issuer":"employer","id":"att-1",` +
		`"expiresAt":"2027-01-02T03:04:05Z","issuedAt":"2026-01-02T03:04:05Z","currency":"EUR","commitment":"123","claimType":"income"}`))
	if err != nil {
		t.Fatalf("canonicalize reordered: %v", err)
	}
	if string(first) != string(reordered) {
		t.Fatalf("expected identical canonical forms:\n%s\n%s", first, reordered)
	}
}

func TestEncodeString_EscapesControlCharacters(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`"a\u0001b\n"`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `"a\u0001b\n"` {
		t.Fatalf("unexpected escape: %s", got)
	}
}
