// Copyright 2025 James Ross
package barcode

import "testing"

func TestValidateEAN13(t *testing.T) {
	if !ValidateEAN13("4006381333931") {
		t.Fatal("expected valid EAN-13")
	}
	if ValidateEAN13("4006381333932") {
		t.Fatal("expected invalid EAN-13 checksum")
	}
}

func TestValidateEAN8(t *testing.T) {
	if !ValidateEAN8("96385074") {
		t.Fatal("expected valid EAN-8")
	}
	if ValidateEAN8("96385075") {
		t.Fatal("expected invalid EAN-8 checksum")
	}
}

func TestValidateUPCA(t *testing.T) {
	if !ValidateUPCA("012345678905") {
		t.Fatal("expected valid UPC-A")
	}
	if ValidateUPCA("012345678906") {
		t.Fatal("expected invalid UPC-A checksum")
	}
}

func TestNormalizeUPCAToEAN13(t *testing.T) {
	got := Normalize("012345678905", UPCA)
	if got != "0012345678905" {
		t.Fatalf("expected 0012345678905, got %s", got)
	}
	if !ValidateEAN13(got) {
		t.Fatal("expected normalized UPC-A to validate as EAN-13")
	}
}

func TestNormalizeToEAN13(t *testing.T) {
	got, ok := NormalizeToEAN13("012345678905", UPCA)
	if !ok || got != "0012345678905" {
		t.Fatalf("got %q, %v", got, ok)
	}
	if _, ok := NormalizeToEAN13("96385074", EAN8); ok {
		t.Fatal("EAN-8 should not normalize to EAN-13")
	}
	got, ok = NormalizeToEAN13("4006381333931", EAN13)
	if !ok || got != "4006381333931" {
		t.Fatalf("EAN-13 passthrough failed: %q %v", got, ok)
	}
}

func TestDetectSymbology(t *testing.T) {
	cases := map[string]Symbology{
		"4006381333931":  EAN13,
		"012345678905":   UPCA,
		"96385074":       EAN8,
		"123456":         UPCE,
		"1234567":        UPCE,
		"12345":          Unknown,
		"not-a-code-123": Unknown,
	}
	for code, want := range cases {
		if got := DetectSymbology(code); got != want {
			t.Errorf("DetectSymbology(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestValidateBoundaryBehaviours(t *testing.T) {
	// Non-digit characters in any candidate code are rejected.
	if Validate("4006381x33931").Valid() {
		t.Fatal("non-digit code must not validate")
	}
	// Code of length not in {6,7,8,12,13} is UNKNOWN -> invalid.
	v := Validate("12345")
	if v.Symbology != Unknown || v.Valid() {
		t.Fatal("length-5 code must be UNKNOWN and invalid")
	}
	// UPC-E is accepted without checksum verification in the CORE.
	v = Validate("123456")
	if v.Symbology != UPCE || !v.Valid() {
		t.Fatal("UPC-E should validate without checksum verification")
	}
}
