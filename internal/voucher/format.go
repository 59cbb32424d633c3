// Package voucher turns a numbering policy and an allocated sequence value
// into a display number. Nothing here touches storage.
package voucher

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rgsons/backend/internal/domain"
)

const (
	DefaultSeparator = "-"
	DefaultPadding   = 4
)

// Format builds the voucher number for seq. Parts are emitted in the order
// prefix, store(1), year, store(2), month, day, store(3), number, suffix and
// joined with the configured separator. Exactly one store-code slot is used;
// a missing or unknown position means slot 1.
func Format(cfg domain.VoucherConfig, storeCode string, at time.Time, seq int64) string {
	parts := make([]string, 0, 8)
	add := func(part string) {
		if part != "" {
			parts = append(parts, part)
		}
	}

	position := storeSlot(cfg.StoreCodePosition)
	store := ""
	if cfg.IncludeStoreCode {
		store = strings.TrimSpace(storeCode)
	}

	add(cfg.Prefix)
	if position == 1 {
		add(store)
	}
	if cfg.IncludeYear {
		add(formatYear(cfg.YearFormat, at))
	}
	if position == 2 {
		add(store)
	}
	if cfg.IncludeMonth {
		add(formatMonth(cfg.MonthFormat, at))
	}
	if cfg.IncludeDay {
		add(formatDay(cfg.DayFormat, at))
	}
	if position == 3 {
		add(store)
	}

	padding := DefaultPadding
	if cfg.NumberPadding != nil && *cfg.NumberPadding > 0 {
		padding = *cfg.NumberPadding
	}
	add(fmt.Sprintf("%0*d", padding, seq))
	add(cfg.Suffix)

	separator := DefaultSeparator
	if cfg.Separator != nil {
		separator = *cfg.Separator
	}
	return strings.Join(parts, separator)
}

func storeSlot(position *int) int {
	if position == nil {
		return 1
	}
	switch *position {
	case 2, 3:
		return *position
	default:
		return 1
	}
}

func formatYear(format string, at time.Time) string {
	if strings.EqualFold(strings.TrimSpace(format), "YY") {
		return at.Format("06")
	}
	return strconv.Itoa(at.Year())
}

func formatMonth(format string, at time.Time) string {
	switch strings.TrimSpace(format) {
	case "M":
		return strconv.Itoa(int(at.Month()))
	case "MMM":
		return at.Format("Jan")
	case "MMMM":
		return at.Format("January")
	default:
		return at.Format("01")
	}
}

// formatDay treats both DD and dd as the two-digit day of month.
func formatDay(format string, at time.Time) string {
	switch strings.TrimSpace(format) {
	case "D", "d":
		return strconv.Itoa(at.Day())
	default:
		return at.Format("02")
	}
}
