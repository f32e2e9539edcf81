// Copyright 2025 James Ross
package images

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPreprocessing, true},
		{StatusPending, StatusDecodedPrimary, false},
		{StatusPreprocessed, StatusDecodingPrimary, true},
		{StatusPreprocessed, StatusDecodingFallback, true},
		{StatusDecodingPrimary, StatusPreprocessed, true},
		{StatusDecodingFallback, StatusManualReview, true},
		{StatusManualReview, StatusDecodedManual, true},
		{StatusFailed, StatusDecodingFallback, true},
		{StatusFailed, StatusPreprocessing, false},
		{StatusDecodedPrimary, StatusFailed, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusDecodedPrimary, StatusDecodedFallback, StatusDecodedManual, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusPreprocessing, StatusPreprocessed, StatusManualReview} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestAddDecoderAttemptAccumulatesTokensAndSplitsLists(t *testing.T) {
	img := &Image{}
	img.AddDecoderAttempt(DecoderAttempt{Decoder: "local", IsFallback: false, CodesFound: 1})
	img.AddDecoderAttempt(DecoderAttempt{Decoder: "ai", IsFallback: true, CodesFound: 1, Tokens: 120})

	if len(img.Processing.PrimaryAttempts) != 1 {
		t.Fatalf("expected 1 primary attempt, got %d", len(img.Processing.PrimaryAttempts))
	}
	if len(img.Processing.FallbackAttempts) != 1 {
		t.Fatalf("expected 1 fallback attempt, got %d", len(img.Processing.FallbackAttempts))
	}
	if img.Processing.CumulativeTokens != 120 {
		t.Fatalf("expected cumulative tokens 120, got %d", img.Processing.CumulativeTokens)
	}
}
