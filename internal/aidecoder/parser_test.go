// Copyright 2025 James Ross
package aidecoder

import "testing"

func TestParseReadingsDirectArray(t *testing.T) {
	readings, err := parseReadings(`[{"code":"4006381333931","symbologyGuess":"EAN-13","confidence":0.95}]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readings) != 1 || readings[0].Code != "4006381333931" {
		t.Fatalf("got %+v", readings)
	}
}

func TestParseReadingsEmptyArray(t *testing.T) {
	readings, err := parseReadings(`[]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readings) != 0 {
		t.Fatalf("expected no readings, got %+v", readings)
	}
}

func TestParseReadingsSurroundedByProse(t *testing.T) {
	raw := `Sure thing! Here is what I found:
[{"code":"96385074","symbologyGuess":"EAN-8","confidence":0.8}]
Let me know if you need anything else.`
	readings, err := parseReadings(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readings) != 1 || readings[0].Code != "96385074" {
		t.Fatalf("got %+v", readings)
	}
}

func TestParseReadingsFencedCodeBlock(t *testing.T) {
	raw := "Here you go:\n```json\n[{\"code\":\"012345678905\",\"symbologyGuess\":\"UPC-A\",\"confidence\":0.7}]\n```"
	readings, err := parseReadings(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readings) != 1 || readings[0].Code != "012345678905" {
		t.Fatalf("got %+v", readings)
	}
}

func TestParseReadingsSingleObjectFallback(t *testing.T) {
	raw := `I only see one barcode: {"code":"4006381333931","symbologyGuess":"EAN-13","confidence":0.6}`
	readings, err := parseReadings(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readings) != 1 || readings[0].Code != "4006381333931" {
		t.Fatalf("got %+v", readings)
	}
}

func TestParseReadingsDropsMissingCode(t *testing.T) {
	readings, err := parseReadings(`[{"symbologyGuess":"EAN-13","confidence":0.5},{"code":"96385074","symbologyGuess":"EAN-8","confidence":0.9}]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readings) != 1 || readings[0].Code != "96385074" {
		t.Fatalf("expected only the entry with a code, got %+v", readings)
	}
}

func TestParseReadingsUnparseableReturnsError(t *testing.T) {
	if _, err := parseReadings("I don't see any barcodes in this image."); err == nil {
		t.Fatal("expected an error for unparseable prose")
	}
}
