// Copyright 2025 James Ross
package queue

import (
	"testing"
	"time"
)

func TestBackoffSecondsFollowsExponentialFormula(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 60 * time.Second},
		{1, 120 * time.Second},
		{2, 240 * time.Second},
		{3, 480 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffSeconds(tc.attempts); got != tc.want {
			t.Errorf("backoffSeconds(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}
