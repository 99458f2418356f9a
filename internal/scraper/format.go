// ABOUTME: Renders scrape results as Markdown posts and builds monthly summaries
// ABOUTME: Summaries average (buy+sell)/2 per label and day over a month of records

package scraper

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/dolarbot/internal/store"
)

// Upstream field names of one quote.
const (
	FieldBuy       = "compra"
	FieldSell      = "venta"
	FieldVariation = "variacion"
	FieldClass     = "class-variacion"
)

// FormatPost renders one block per present label, in result order.
func FormatPost(p Profile, r *Result) string {
	var b strings.Builder
	for _, e := range r.Entries {
		glyph := p.Glyphs.For(e.Value.Get(FieldClass).String())

		b.WriteString(p.Title(e.Label))
		b.WriteByte('\n')
		fmt.Fprintf(&b, "*Buy:* %s - *Sell:* %s\n", e.Value.Get(FieldBuy).String(), e.Value.Get(FieldSell).String())
		fmt.Fprintf(&b, "*Variation:* %s %s\n\n", e.Value.Get(FieldVariation).String(), glyph)
	}
	return b.String()
}

// DailyAverage is the mean mid price of one day of the month.
type DailyAverage struct {
	Day   int
	Value float64
}

// Series holds the daily averages of one label.
type Series struct {
	Label string
	Days  []DailyAverage
}

// Mean of the daily values.
func (s Series) Mean() float64 {
	if len(s.Days) == 0 {
		return 0
	}
	var sum float64
	for _, d := range s.Days {
		sum += d.Value
	}
	return round2(sum / float64(len(s.Days)))
}

// Min and Max of the daily values.
func (s Series) Min() float64 { return s.pick(func(a, b float64) bool { return a < b }) }
func (s Series) Max() float64 { return s.pick(func(a, b float64) bool { return a > b }) }

func (s Series) pick(better func(a, b float64) bool) float64 {
	if len(s.Days) == 0 {
		return 0
	}
	v := s.Days[0].Value
	for _, d := range s.Days[1:] {
		if better(d.Value, v) {
			v = d.Value
		}
	}
	return v
}

// Change is the percent move from the first to the last day.
func (s Series) Change() float64 {
	if len(s.Days) < 2 || s.Days[0].Value == 0 {
		return 0
	}
	first, last := s.Days[0].Value, s.Days[len(s.Days)-1].Value
	return round2((last - first) / first * 100)
}

// MonthlyAverages averages (buy+sell)/2 per label and day of month.
// Labels keep the order in which they first appear; records whose data is
// not an object and quotes without a parseable price are skipped.
func MonthlyAverages(records []*store.ScrapedRecord) []Series {
	type acc struct{ sum, n float64 }
	perLabel := map[string]map[int]*acc{}
	var order []string

	for _, rec := range records {
		data := gjson.ParseBytes(rec.Data)
		if !data.IsObject() {
			continue
		}
		day := rec.Timestamp.Day()
		data.ForEach(func(key, quote gjson.Result) bool {
			buy, okBuy := parsePrice(quote.Get(FieldBuy).String())
			sell, okSell := parsePrice(quote.Get(FieldSell).String())
			if !okBuy || !okSell {
				return true
			}
			label := key.String()
			days, ok := perLabel[label]
			if !ok {
				days = map[int]*acc{}
				perLabel[label] = days
				order = append(order, label)
			}
			a, ok := days[day]
			if !ok {
				a = &acc{}
				days[day] = a
			}
			a.sum += (buy + sell) / 2
			a.n++
			return true
		})
	}

	series := make([]Series, 0, len(order))
	for _, label := range order {
		s := Series{Label: label}
		for day, a := range perLabel[label] {
			s.Days = append(s.Days, DailyAverage{Day: day, Value: round2(a.sum / a.n)})
		}
		sort.Slice(s.Days, func(i, j int) bool { return s.Days[i].Day < s.Days[j].Day })
		series = append(series, s)
	}
	return series
}

// FormatSummary renders the monthly series as a post.
func FormatSummary(p Profile, month time.Time, series []Series) string {
	if len(series) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Monthly summary %s*\n\n", month.Format("01 2006"))
	for _, s := range series {
		b.WriteString(p.Title(s.Label))
		b.WriteByte('\n')
		fmt.Fprintf(&b, "*Avg:* %.2f - *Min:* %.2f - *Max:* %.2f\n", s.Mean(), s.Min(), s.Max())
		change := s.Change()
		fmt.Fprintf(&b, "*Change:* %+.2f%% %s\n\n", change, p.Glyphs.For(changeClass(change)))
	}
	return b.String()
}

// PreviousMonth returns the first and last instant of the month before now.
func PreviousMonth(now time.Time) (time.Time, time.Time) {
	firstOfThis := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	start := firstOfThis.AddDate(0, -1, 0)
	end := firstOfThis.Add(-time.Second)
	return start, end
}

func changeClass(change float64) string {
	switch {
	case change > 0:
		return "up"
	case change < 0:
		return "down"
	default:
		return "equal"
	}
}

// parsePrice reads prices like "1025,50" where a comma is the decimal separator.
func parsePrice(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
