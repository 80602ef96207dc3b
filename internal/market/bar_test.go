package market

import (
	"testing"
	"time"
)

func TestNormalizeTicker(t *testing.T) {
	cases := map[string]string{
		"5930":    "005930",
		"005930":  "005930",
		" 660 ":   "000660",
		"1234567": "1234567", // already wider, keep as is
	}
	for in, want := range cases {
		if got := NormalizeTicker(in); got != want {
			t.Errorf("NormalizeTicker(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDay(t *testing.T) {
	want := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"20260825", "2026-08-25", " 20260825 "} {
		got, err := ParseDay(in)
		if err != nil {
			t.Fatalf("ParseDay(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Errorf("ParseDay(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseDay("2026/08/25"); err == nil {
		t.Error("slash format must be rejected")
	}
}

func TestParse(t *testing.T) {
	for in, want := range map[string]Market{
		"kospi": KOSPI, "KS": KOSPI, "": KOSPI,
		"KOSDAQ": KOSDAQ, "kq": KOSDAQ,
	} {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := Parse("nasdaq"); err == nil {
		t.Error("unknown market must error")
	}
}

func barAt(ticker, day string, close float64) Bar {
	d, err := ParseDay(day)
	if err != nil {
		panic(err)
	}
	return Bar{Ticker: ticker, Date: d, Close: close, Volume: 1,
		Value: NaN(), MarketCap: NaN(), Shares: NaN()}
}

func TestPanel_ByTicker(t *testing.T) {
	p := &Panel{Market: KOSPI, Bars: []Bar{
		barAt("000660", "20260825", 50),
		barAt("000660", "20260826", 51),
		barAt("005930", "20260825", 100),
	}}
	p.Sort()

	series := p.ByTicker()
	if len(series) != 2 {
		t.Fatalf("got %d series, want 2", len(series))
	}
	if series[0].Ticker != "000660" || len(series[0].Bars) != 2 {
		t.Errorf("series[0] = %s (%d bars)", series[0].Ticker, len(series[0].Bars))
	}
	if series[1].Ticker != "005930" || len(series[1].Bars) != 1 {
		t.Errorf("series[1] = %s (%d bars)", series[1].Ticker, len(series[1].Bars))
	}
}

func TestPanel_LatestDateAndTickers(t *testing.T) {
	p := &Panel{Market: KOSPI, Bars: []Bar{
		barAt("005930", "20260825", 100),
		barAt("005930", "20260827", 102),
		barAt("000660", "20260826", 51),
	}}
	p.Sort()

	want, _ := ParseDay("20260827")
	if !p.LatestDate().Equal(want) {
		t.Errorf("LatestDate = %v", p.LatestDate())
	}
	tickers := p.Tickers()
	if len(tickers) != 2 || tickers[0] != "000660" {
		t.Errorf("Tickers = %v", tickers)
	}
}

func TestPanel_FilterTickers(t *testing.T) {
	p := &Panel{Market: KOSPI, HasValue: true, Bars: []Bar{
		barAt("000660", "20260825", 50),
		barAt("005930", "20260825", 100),
	}}

	f := p.FilterTickers(map[string]bool{"005930": true})
	if f.Len() != 1 || f.Bars[0].Ticker != "005930" {
		t.Errorf("filtered = %+v", f.Bars)
	}
	if !f.HasValue {
		t.Error("optional-column flags must carry over")
	}
}
