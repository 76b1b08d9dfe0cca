package models

// QuoteType mirrors the streamer's quote type enum.
type QuoteType int32

const (
	QuoteTypeNone           QuoteType = 0
	QuoteTypeAltSymbol      QuoteType = 5
	QuoteTypeHeartbeat      QuoteType = 7
	QuoteTypeEquity         QuoteType = 8
	QuoteTypeIndex          QuoteType = 9
	QuoteTypeMutualFund     QuoteType = 11
	QuoteTypeMoneyMarket    QuoteType = 12
	QuoteTypeOption         QuoteType = 13
	QuoteTypeCurrency       QuoteType = 14
	QuoteTypeWarrant        QuoteType = 15
	QuoteTypeBond           QuoteType = 17
	QuoteTypeFuture         QuoteType = 18
	QuoteTypeETF            QuoteType = 20
	QuoteTypeCommodity      QuoteType = 23
	QuoteTypeECNQuote       QuoteType = 28
	QuoteTypeCryptocurrency QuoteType = 41
	QuoteTypeIndicator      QuoteType = 42
	QuoteTypeIndustry       QuoteType = 1000
)

var quoteTypeNames = map[QuoteType]string{
	QuoteTypeNone:           "NONE",
	QuoteTypeAltSymbol:      "ALTSYMBOL",
	QuoteTypeHeartbeat:      "HEARTBEAT",
	QuoteTypeEquity:         "EQUITY",
	QuoteTypeIndex:          "INDEX",
	QuoteTypeMutualFund:     "MUTUALFUND",
	QuoteTypeMoneyMarket:    "MONEYMARKET",
	QuoteTypeOption:         "OPTION",
	QuoteTypeCurrency:       "CURRENCY",
	QuoteTypeWarrant:        "WARRANT",
	QuoteTypeBond:           "BOND",
	QuoteTypeFuture:         "FUTURE",
	QuoteTypeETF:            "ETF",
	QuoteTypeCommodity:      "COMMODITY",
	QuoteTypeECNQuote:       "ECNQUOTE",
	QuoteTypeCryptocurrency: "CRYPTOCURRENCY",
	QuoteTypeIndicator:      "INDICATOR",
	QuoteTypeIndustry:       "INDUSTRY",
}

func (q QuoteType) String() string {
	if s, ok := quoteTypeNames[q]; ok {
		return s
	}
	return "UNKNOWN"
}

// MarketHours mirrors the streamer's market hours enum.
type MarketHours int32

const (
	MarketHoursPre      MarketHours = 0
	MarketHoursRegular  MarketHours = 1
	MarketHoursPost     MarketHours = 2
	MarketHoursExtended MarketHours = 3
)

func (m MarketHours) String() string {
	switch m {
	case MarketHoursPre:
		return "PRE_MARKET"
	case MarketHoursRegular:
		return "REGULAR_MARKET"
	case MarketHoursPost:
		return "POST_MARKET"
	case MarketHoursExtended:
		return "EXTENDED_HOURS_MARKET"
	}
	return "UNKNOWN"
}

type OptionType int32

const (
	OptionTypeCall OptionType = 0
	OptionTypePut  OptionType = 1
)

func (o OptionType) String() string {
	switch o {
	case OptionTypeCall:
		return "CALL"
	case OptionTypePut:
		return "PUT"
	}
	return "UNKNOWN"
}

// -----------------------------------------------------------------------------

// MPricingData is one decoded streaming tick. Time is epoch milliseconds.
type MPricingData struct {
	ID                string      `json:"id"`
	Price             float32     `json:"price"`
	Time              int64       `json:"time"`
	Currency          string      `json:"currency,omitempty"`
	Exchange          string      `json:"exchange,omitempty"`
	QuoteType         QuoteType   `json:"quote_type"`
	MarketHours       MarketHours `json:"market_hours"`
	ChangePercent     float32     `json:"change_percent"`
	DayVolume         int64       `json:"day_volume"`
	DayHigh           float32     `json:"day_high"`
	DayLow            float32     `json:"day_low"`
	Change            float32     `json:"change"`
	ShortName         string      `json:"short_name,omitempty"`
	ExpireDate        int64       `json:"expire_date,omitempty"`
	OpenPrice         float32     `json:"open_price"`
	PreviousClose     float32     `json:"previous_close"`
	StrikePrice       float32     `json:"strike_price,omitempty"`
	UnderlyingSymbol  string      `json:"underlying_symbol,omitempty"`
	OpenInterest      int64       `json:"open_interest,omitempty"`
	OptionsType       OptionType  `json:"options_type"`
	MiniOption        int64       `json:"mini_option,omitempty"`
	LastSize          int64       `json:"last_size"`
	Bid               float32     `json:"bid"`
	BidSize           int64       `json:"bid_size"`
	Ask               float32     `json:"ask"`
	AskSize           int64       `json:"ask_size"`
	PriceHint         int64       `json:"price_hint"`
	Vol24Hr           int64       `json:"vol_24hr,omitempty"`
	VolAllCurrencies  int64       `json:"vol_all_currencies,omitempty"`
	FromCurrency      string      `json:"from_currency,omitempty"`
	LastMarket        string      `json:"last_market,omitempty"`
	CirculatingSupply float64     `json:"circulating_supply,omitempty"`
	MarketCap         float64     `json:"market_cap,omitempty"`
}
