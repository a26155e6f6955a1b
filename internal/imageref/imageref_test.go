package imageref

import "testing"

func TestValidateAcceptsWellFormedReference(t *testing.T) {
	if err := Validate("alpine:3.19"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsMalformedReference(t *testing.T) {
	if err := Validate("UPPER CASE not allowed::::"); err == nil {
		t.Fatal("expected error for malformed reference")
	}
}
