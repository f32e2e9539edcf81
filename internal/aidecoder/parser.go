// Copyright 2025 James Ross
package aidecoder

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	arrayRe       = regexp.MustCompile(`(?s)\[.*\]`)
	objectRe      = regexp.MustCompile(`(?s)\{.*\}`)
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

// parseReadings extracts a []Reading from a model response that is
// supposed to be a bare JSON array, but in practice may arrive wrapped in
// prose or a markdown code fence. It tries, in order:
//  1. direct JSON parse of the whole response
//  2. regex-extract the first "[...]" span
//  3. regex-extract the first "{...}" span (a single reading, not an array)
//  4. regex-extract a fenced ```json ... ``` block and retry parsing it
//
// Readings missing a non-empty code are dropped.
func parseReadings(raw string) ([]Reading, error) {
	trimmed := strings.TrimSpace(raw)

	if readings, ok := tryParseArray(trimmed); ok {
		return dropEmptyCodes(readings), nil
	}

	if m := arrayRe.FindString(trimmed); m != "" {
		if readings, ok := tryParseArray(m); ok {
			return dropEmptyCodes(readings), nil
		}
	}

	if m := objectRe.FindString(trimmed); m != "" {
		var single Reading
		if err := json.Unmarshal([]byte(m), &single); err == nil {
			return dropEmptyCodes([]Reading{single}), nil
		}
	}

	if m := fencedBlockRe.FindStringSubmatch(trimmed); len(m) == 2 {
		if readings, ok := tryParseArray(m[1]); ok {
			return dropEmptyCodes(readings), nil
		}
		var single Reading
		if err := json.Unmarshal([]byte(m[1]), &single); err == nil {
			return dropEmptyCodes([]Reading{single}), nil
		}
	}

	return nil, fmt.Errorf("aidecoder: could not extract JSON from response")
}

func tryParseArray(s string) ([]Reading, bool) {
	var readings []Reading
	if err := json.Unmarshal([]byte(s), &readings); err != nil {
		return nil, false
	}
	return readings, true
}

func dropEmptyCodes(readings []Reading) []Reading {
	out := make([]Reading, 0, len(readings))
	for _, r := range readings {
		if strings.TrimSpace(r.Code) == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
