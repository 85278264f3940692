package store

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestDurationToPgInterval(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected pgtype.Interval
	}{
		{
			name:     "30 seconds",
			duration: 30 * time.Second,
			expected: pgtype.Interval{Microseconds: 30000000, Valid: true},
		},
		{
			name:     "15 minutes",
			duration: 15 * time.Minute,
			expected: pgtype.Interval{Microseconds: 900000000, Valid: true},
		},
		{
			name:     "1 hour",
			duration: time.Hour,
			expected: pgtype.Interval{Microseconds: 3600000000, Valid: true},
		},
		{
			name:     "1 day",
			duration: 24 * time.Hour,
			expected: pgtype.Interval{Days: 1, Valid: true}, // days are stored separately
		},
		{
			name:     "2 days 500ms",
			duration: 48*time.Hour + 500*time.Millisecond,
			expected: pgtype.Interval{Microseconds: 500000, Days: 2, Valid: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := durationToPgInterval(tt.duration)
			if got != tt.expected {
				t.Errorf("durationToPgInterval() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPgIntervalToDuration(t *testing.T) {
	tests := []struct {
		name        string
		interval    pgtype.Interval
		expected    time.Duration
		expectError bool
	}{
		{
			name:     "microseconds only",
			interval: pgtype.Interval{Microseconds: 60000000, Valid: true},
			expected: time.Minute,
		},
		{
			name:     "days and microseconds",
			interval: pgtype.Interval{Microseconds: 1000000, Days: 1, Valid: true},
			expected: 24*time.Hour + time.Second,
		},
		{
			name:        "contains months",
			interval:    pgtype.Interval{Months: 1, Valid: true},
			expectError: true,
		},
		{
			name:        "null",
			interval:    pgtype.Interval{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pgIntervalToDuration(tt.interval)
			if (err != nil) != tt.expectError {
				t.Errorf("pgIntervalToDuration() error = %v, expectError %v", err, tt.expectError)
				return
			}
			if got != tt.expected {
				t.Errorf("pgIntervalToDuration() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCollectionIntervalRoundTrip(t *testing.T) {
	for _, millis := range []int64{1000, 30000, 900000, 3600000, 86400000, 90061000} {
		d := time.Duration(millis) * time.Millisecond
		got, err := pgIntervalToDuration(durationToPgInterval(d))
		if err != nil {
			t.Fatalf("round trip %dms: %v", millis, err)
		}
		if got.Milliseconds() != millis {
			t.Errorf("round trip %dms: got %dms", millis, got.Milliseconds())
		}
	}
}

func TestIntervalTextRoundTrip(t *testing.T) {
	iv := durationToPgInterval(25*time.Hour + 15*time.Minute)
	v, err := iv.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	text, ok := v.(string)
	if !ok {
		t.Fatalf("Value() = %T, want string", v)
	}
	var back pgtype.Interval
	if err := back.Scan(text); err != nil {
		t.Fatalf("Scan(%q) error = %v", text, err)
	}
	if back != iv {
		t.Errorf("Scan(%q) = %v, want %v", text, back, iv)
	}

	null, err := pgtype.Interval{}.Value()
	if err != nil || null != nil {
		t.Errorf("null interval Value() = %v, %v", null, err)
	}
}

func TestIDConversions(t *testing.T) {
	ids := []int{3, 1, 2}
	back := toInts(toInt64s(ids))
	for i := range ids {
		if back[i] != ids[i] {
			t.Fatalf("toInts(toInt64s(%v)) = %v", ids, back)
		}
	}
	if len(toInt64s(nil)) != 0 {
		t.Fatalf("expected empty slice for nil input")
	}
}
