package utils

import (
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers "is this market open" for one exchange.
type TradingCalendar struct {
	MIC        string
	Calendar   *calendar.Calendar
	Fallback   bool
	AlwaysOpen bool
	Timezone   *time.Location
}

// symbol suffix -> ISO 10383 MIC
var suffixMICs = map[string]string{
	".L":  "xlon",
	".PA": "xpar",
	".DE": "xfra",
	".F":  "xfra",
	".AS": "xams",
	".BR": "xbru",
	".MI": "xmil",
	".MC": "xmad",
	".ST": "xsto",
	".CO": "xcse",
	".HE": "xhel",
	".VI": "xwbo",
	".SW": "xswx",
	".TO": "xtse",
	".V":  "xtsx",
	".T":  "xtks",
	".HK": "xhkg",
	".AX": "xasx",
	".KS": "xkrx",
	".TW": "xtai",
	".SS": "xshg",
	".SZ": "xshe",
}

const defaultMIC = "xnys"

// MICForSymbol maps a Yahoo symbol to its exchange. Crypto pairs and
// currency crosses trade around the clock and map to "".
func MICForSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, "=X") || isCryptoPair(s) {
		return ""
	}
	if i := strings.LastIndex(s, "."); i > 0 {
		if mic, ok := suffixMICs[s[i:]]; ok {
			return mic
		}
	}
	return defaultMIC
}

func isCryptoPair(s string) bool {
	for _, quote := range []string{"-USD", "-EUR", "-USDT", "-BTC", "-ETH", "-GBP", "-JPY"} {
		if strings.HasSuffix(s, quote) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// GetCalendar returns the calendar trading symbol.
func GetCalendar(symbol string) *TradingCalendar {
	mic := MICForSymbol(symbol)
	if mic == "" {
		return &TradingCalendar{AlwaysOpen: true, Timezone: time.UTC}
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		mic = defaultMIC
		cal = calendar.GetCalendar(mic)
	}
	if cal == nil {
		// Mon-Fri 09:30-16:00 New York
		nyLoc, err := time.LoadLocation("America/New_York")
		if err != nil {
			nyLoc = time.UTC
		}
		return &TradingCalendar{MIC: mic, Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{MIC: mic, Calendar: cal, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.AlwaysOpen {
		return true
	}
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute reports whether the market is in its regular session at t.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.AlwaysOpen {
		return true
	}
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}
		minutes := t.Hour()*60 + t.Minute()
		return minutes >= 9*60+30 && minutes < 16*60
	}

	return tc.Calendar.IsOpen(t)
}
