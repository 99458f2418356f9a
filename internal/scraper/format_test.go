// ABOUTME: Tests for post and summary formatting
// ABOUTME: Covers hashtags, titles, monthly averages and the summary post

package scraper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/2389/dolarbot/internal/store"
)

func resultOf(pairs ...string) *Result {
	r := &Result{}
	for i := 0; i < len(pairs); i += 2 {
		r.Entries = append(r.Entries, Entry{Label: pairs[i], Value: gjson.Parse(pairs[i+1])})
	}
	return r
}

func TestFormatPost_Hashtag(t *testing.T) {
	r := resultOf(
		"dolar_blue", blueQuote,
		"dolar_banco_nacion", `{"compra":"900","venta":"940","variacion":"-1,00%","class-variacion":"down"}`,
		"euro", `{"compra":"1100","venta":"1150","variacion":"0,00%","class-variacion":"equal"}`,
		"dolar_mep", `{"compra":"1200","venta":"1210","variacion":"?"}`,
	)

	want := "#DolarBlue\n*Buy:* 1000,00 - *Sell:* 1020,00\n*Variation:* 0,50% 🟢\n\n" +
		"#DolarBancoNacion\n*Buy:* 900 - *Sell:* 940\n*Variation:* -1,00% 🔴\n\n" +
		"#Euro\n*Buy:* 1100 - *Sell:* 1150\n*Variation:* 0,00% 🟡\n\n" +
		"#DolarMep\n*Buy:* 1200 - *Sell:* 1210\n*Variation:* ? \n\n"
	assert.Equal(t, want, FormatPost(DolarArg, r))
}

func TestFormatPost_LegacyTitle(t *testing.T) {
	r := resultOf("dolar_blue", blueQuote)

	want := "*Dolar Blue:*\n*Buy:* 1000,00 - *Sell:* 1020,00\n*Variation:* 0,50% 🔺\n\n"
	assert.Equal(t, want, FormatPost(Dolar, r))
}

func TestFormatPost_Empty(t *testing.T) {
	assert.Empty(t, FormatPost(DolarArg, &Result{}))
}

func TestTitles(t *testing.T) {
	assert.Equal(t, "#DolarBancoNacion", DolarArg.Title("dolar_banco_nacion"))
	assert.Equal(t, "*Euro Blue:*", Dolar.Title("euro_blue"))
	assert.Equal(t, "Dolar Ccl", DisplayName("dolar_ccl"))
	assert.Equal(t, "Euro", DisplayName("_euro_"))
}

func record(t *testing.T, ts time.Time, data map[string]map[string]string) *store.ScrapedRecord {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &store.ScrapedRecord{ID: ts.String(), SourceType: "dolar_arg", Timestamp: ts, Data: raw}
}

func TestMonthlyAverages(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2024, 6, d, h, 0, 0, 0, time.UTC) }
	records := []*store.ScrapedRecord{
		record(t, day(1, 10), map[string]map[string]string{
			"dolar_blue": {"compra": "1000,00", "venta": "1020,00"},
		}),
		record(t, day(1, 16), map[string]map[string]string{
			"dolar_blue": {"compra": "1010", "venta": "1030"},
			"euro":       {"compra": "1100", "venta": "1200"},
		}),
		record(t, day(2, 10), map[string]map[string]string{
			"dolar_blue": {"compra": "1050", "venta": "1070"},
			"euro":       {"compra": "n/a", "venta": "1200"},
		}),
		{ID: "legacy", Timestamp: day(3, 10), Data: json.RawMessage(`[{"compra":"1"}]`)},
	}

	series := MonthlyAverages(records)
	require.Len(t, series, 2)

	blue := series[0]
	assert.Equal(t, "dolar_blue", blue.Label)
	assert.Equal(t, []DailyAverage{{Day: 1, Value: 1015}, {Day: 2, Value: 1060}}, blue.Days)
	assert.InDelta(t, 1037.5, blue.Mean(), 0.001)
	assert.InDelta(t, 1015, blue.Min(), 0.001)
	assert.InDelta(t, 1060, blue.Max(), 0.001)
	assert.InDelta(t, 4.43, blue.Change(), 0.001)

	euro := series[1]
	assert.Equal(t, "euro", euro.Label)
	assert.Equal(t, []DailyAverage{{Day: 1, Value: 1150}}, euro.Days)
	assert.Zero(t, euro.Change())
}

func TestMonthlyAverages_Empty(t *testing.T) {
	assert.Empty(t, MonthlyAverages(nil))
}

func TestFormatSummary(t *testing.T) {
	series := []Series{{Label: "dolar_blue", Days: []DailyAverage{{1, 1000}, {2, 1100}}}}

	got := FormatSummary(DolarArg, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), series)

	want := "*Monthly summary 06 2024*\n\n#DolarBlue\n*Avg:* 1050.00 - *Min:* 1000.00 - *Max:* 1100.00\n*Change:* +10.00% 🟢\n\n"
	assert.Equal(t, want, got)
	assert.Empty(t, FormatSummary(DolarArg, time.Now(), nil))
}

func TestPreviousMonth(t *testing.T) {
	start, end := PreviousMonth(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), end)

	start, end = PreviousMonth(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), end)
}

func TestGlyphs(t *testing.T) {
	assert.Equal(t, "🟢", DolarArg.Glyphs.For("up"))
	assert.Equal(t, "🔻", Dolar.Glyphs.For("down"))
	assert.Equal(t, "", DolarArg.Glyphs.For("sideways"))
}
