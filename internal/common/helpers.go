// Package common содержит общие утилиты, используемые во всём проекте:
// форматирование времени и разбор окна статистики из команды.
package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxLookbackHours ограничивает окно /stats_<N>h одним годом.
const MaxLookbackHours = 24 * 365

// StatsTimeLayout — формат даты в ответе /stats (UTC, без зоны).
const StatsTimeLayout = "2006-01-02 15:04:05"

// FormatUTC форматирует время в UTC по StatsTimeLayout.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(StatsTimeLayout)
}

// ParseLookback разбирает суффикс команды статистики.
//
// Примеры:
//
//	ParseLookback("stats")     → 0, false, nil
//	ParseLookback("stats_6h")  → 6h, true, nil
//	ParseLookback("stats_0h")  → ошибка ErrBadLookback
//	ParseLookback("stats_9000h") → ошибка ErrBadLookback (больше MaxLookbackHours)
func ParseLookback(cmd string) (time.Duration, bool, error) {
	_, suffix, found := strings.Cut(cmd, "_")
	if !found {
		return 0, false, nil
	}

	hours, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(suffix), "h"))
	if err != nil || hours <= 0 || hours > MaxLookbackHours || !strings.HasSuffix(strings.ToLower(suffix), "h") {
		return 0, false, fmt.Errorf("%w: %q", ErrBadLookback, cmd)
	}
	return time.Duration(hours) * time.Hour, true, nil
}
