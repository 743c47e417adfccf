package payouts

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	invoicePrefix = "PI"
	slugMaxLength = 10
)

// Period is an inclusive settlement window. End is the last second of the
// cutoff day.
type Period struct {
	Start time.Time `json:"period_start"`
	End   time.Time `json:"period_end"`
}

// endExclusive is the first instant after the period, used for range queries.
func (p Period) endExclusive() time.Time {
	return p.End.Truncate(time.Second).Add(time.Second)
}

func (p Period) validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("period start and end are required")
	}
	if !p.End.After(p.Start) {
		return fmt.Errorf("period end must be after start")
	}
	return nil
}

// ComputePeriod returns the last complete week ending on cutoffDay before now.
// With the default Tuesday cutoff this is the previous Wednesday 00:00:00 UTC
// through Tuesday 23:59:59 UTC.
func ComputePeriod(now time.Time, cutoffDay time.Weekday) Period {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	back := (int(today.Weekday()) - int(cutoffDay) + 7) % 7
	if back == 0 {
		back = 7
	}
	cutoff := today.AddDate(0, 0, -back)
	return Period{
		Start: cutoff.AddDate(0, 0, -6),
		End:   cutoff.Add(24*time.Hour - time.Second),
	}
}

// PeriodFromDates spans whole UTC days from startDay through endDay inclusive.
func PeriodFromDates(startDay, endDay time.Time) Period {
	start := time.Date(startDay.Year(), startDay.Month(), startDay.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(endDay.Year(), endDay.Month(), endDay.Day(), 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: end.Add(24*time.Hour - time.Second)}
}

// InvoiceNumber formats PI-{YYYYMMDD}-{SLUG}-{SEQ}.
func InvoiceNumber(periodEnd time.Time, slug string, seq int) string {
	return fmt.Sprintf("%s-%s-%s-%04d", invoicePrefix, periodEnd.UTC().Format("20060102"), slugPart(slug), seq)
}

func slugPart(slug string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(slug)) {
		if b.Len() >= slugMaxLength {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "ORG"
	}
	return b.String()
}
