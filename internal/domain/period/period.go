// Package period provides the calendar month value type the pipeline is keyed by.
package period

import (
	"fmt"
	"time"
)

// DateLayout is the layout of calendar dates exchanged with the weather API and the warehouse.
const DateLayout = "2006-01-02"

// Period identifies one calendar month.
type Period struct {
	Year  int
	Month int
}

// New returns the period for year and month, rejecting months outside 1..12.
func New(year, month int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("month must be between 1 and 12, got %d", month)
	}
	if year < 1 {
		return Period{}, fmt.Errorf("invalid year %d", year)
	}
	return Period{Year: year, Month: month}, nil
}

// Parse reads a period written as "YYYY-MM".
func Parse(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period '%s': expected YYYY-MM", s)
	}
	return Period{Year: t.Year(), Month: int(t.Month())}, nil
}

// Of returns the period containing t.
func Of(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// PreviousPeriod returns the month exactly one calendar month before ref.
func PreviousPeriod(ref time.Time) Period {
	return Of(ref).Previous()
}

func (p Period) Previous() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Before reports whether p is an earlier month than q.
func (p Period) Before(q Period) bool {
	return p.Year < q.Year || (p.Year == q.Year && p.Month < q.Month)
}

// FirstDay returns midnight UTC of the first day of the month.
func (p Period) FirstDay() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// LastDay returns midnight UTC of the last day of the month.
func (p Period) LastDay() time.Time {
	return p.FirstDay().AddDate(0, 1, -1)
}

// Bounds returns the first and last day of the month, both inclusive.
func (p Period) Bounds() (first, last time.Time) {
	return p.FirstDay(), p.LastDay()
}

// DateRange returns the inclusive date range of the month.
func (p Period) DateRange() DateRange {
	return DateRange{Start: p.FirstDay(), End: p.LastDay()}
}

// Token returns the zero-padded "YYYYMM" key used in file names.
func (p Period) Token() string {
	return fmt.Sprintf("%04d%02d", p.Year, p.Month)
}

// String returns "YYYY-MM".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Range returns every month from from to to, both inclusive. It is empty when to is before from.
func Range(from, to Period) []Period {
	var out []Period
	for p := from; !to.Before(p); p = p.Next() {
		out = append(out, p)
	}
	return out
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Span returns the date range from the first day of from to the last day of to.
func Span(from, to Period) DateRange {
	return DateRange{Start: from.FirstDay(), End: to.LastDay()}
}

// Days returns the number of calendar days in the range.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + " to " + r.End.Format(DateLayout)
}
