package voucher

import (
	"strings"
	"time"

	"rgsons/backend/internal/domain"
)

// GlobalResetKey is the bucket for counters that never reset.
const GlobalResetKey = "GLOBAL"

// ResetKey returns the time bucket a counter lives in. Unknown or empty
// frequencies behave like NEVER.
func ResetKey(frequency string, at time.Time) string {
	switch strings.ToUpper(strings.TrimSpace(frequency)) {
	case domain.ResetDaily:
		return at.Format("2006-01-02")
	case domain.ResetMonthly:
		return at.Format("2006-01")
	case domain.ResetYearly:
		return at.Format("2006")
	default:
		return GlobalResetKey
	}
}

// IsStoreWise reports whether counters are kept per store.
func IsStoreWise(scope string) bool {
	return strings.EqualFold(strings.TrimSpace(scope), domain.ScopeStoreWise)
}
