package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviousPeriod(t *testing.T) {
	tests := []struct {
		ref  time.Time
		want Period
	}{
		{time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC), Period{2026, 1}},
		{time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC), Period{2025, 12}},
		{time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC), Period{2024, 2}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PreviousPeriod(tt.ref), tt.ref.String())
	}
}

func TestBounds(t *testing.T) {
	first, last := Period{2024, 2}.Bounds()
	assert.Equal(t, "2024-02-01", first.Format(DateLayout))
	assert.Equal(t, "2024-02-29", last.Format(DateLayout))

	_, last = Period{2025, 12}.Bounds()
	assert.Equal(t, "2025-12-31", last.Format(DateLayout))
	assert.Equal(t, 31, Period{2025, 1}.DateRange().Days())
}

func TestTokenAndString(t *testing.T) {
	p := Period{2025, 1}
	assert.Equal(t, "202501", p.Token())
	assert.Equal(t, "2025-01", p.String())
}

func TestNewAndParse(t *testing.T) {
	_, err := New(2025, 13)
	assert.ErrorContains(t, err, "month must be between 1 and 12")
	_, err = New(2025, 0)
	assert.Error(t, err)

	p, err := Parse("2024-11")
	require.NoError(t, err)
	assert.Equal(t, Period{2024, 11}, p)

	_, err = Parse("2024/11")
	assert.Error(t, err)
}

func TestRange(t *testing.T) {
	got := Range(Period{2024, 11}, Period{2025, 2})
	assert.Equal(t, []Period{{2024, 11}, {2024, 12}, {2025, 1}, {2025, 2}}, got)
	assert.Len(t, Range(Period{2024, 1}, Period{2025, 12}), 24)
	assert.Empty(t, Range(Period{2025, 2}, Period{2025, 1}))

	span := Span(Period{2024, 1}, Period{2025, 12})
	assert.Equal(t, "2024-01-01 to 2025-12-31", span.String())
}
