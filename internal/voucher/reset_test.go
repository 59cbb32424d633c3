package voucher

import (
	"testing"
	"time"
)

func TestResetKey(t *testing.T) {
	at := time.Date(2026, time.February, 3, 23, 59, 0, 0, time.UTC)

	tests := map[string]string{
		"NEVER":   "GLOBAL",
		"":        "GLOBAL",
		"weekly":  "GLOBAL",
		"DAILY":   "2026-02-03",
		"daily":   "2026-02-03",
		"MONTHLY": "2026-02",
		"YEARLY":  "2026",
	}
	for frequency, want := range tests {
		if got := ResetKey(frequency, at); got != want {
			t.Fatalf("frequency %q: expected %s, got %s", frequency, want, got)
		}
	}
}

func TestIsStoreWise(t *testing.T) {
	if !IsStoreWise("store_wise") {
		t.Fatalf("expected case-insensitive STORE_WISE match")
	}
	if IsStoreWise("GLOBAL") || IsStoreWise("") {
		t.Fatalf("expected GLOBAL and empty scope to be shared")
	}
}
