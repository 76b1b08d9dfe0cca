package streaming_test

import (
	"encoding/base64"
	"fmt"
	"testing"

	"yfinance-observer/src/models"
	"yfinance-observer/src/streaming"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleTick() models.MPricingData {
	return models.MPricingData{
		ID:                "BTC-USD",
		Price:             64210.5,
		Time:              1767350400000,
		Currency:          "USD",
		Exchange:          "CCC",
		QuoteType:         models.QuoteTypeCryptocurrency,
		MarketHours:       models.MarketHoursRegular,
		ChangePercent:     -1.25,
		DayVolume:         35120000000,
		DayHigh:           65010,
		DayLow:            63880.25,
		Change:            -812.75,
		ShortName:         "Bitcoin USD",
		OpenPrice:         65000,
		PreviousClose:     65023.25,
		LastSize:          -3,
		Vol24Hr:           35120000000,
		VolAllCurrencies:  35120000000,
		FromCurrency:      "BTC",
		LastMarket:        "CoinMarketCap",
		CirculatingSupply: 19790000,
		MarketCap:         1.27e12,
		PriceHint:         2,
	}
}

func TestPricingRoundTripThroughEnvelope(t *testing.T) {
	want := sampleTick()
	frame := fmt.Sprintf(`{"type":"pricing","message":%q}`, streaming.EncodePricingMessage(want))

	env, err := streaming.DecodeEnvelope([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, streaming.MessageTypePricing, env.Type)

	got, err := streaming.DecodePricingMessage(env.Message)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tick mismatch (-want +got):\n%s", diff)
	}
}

func TestPricingOptionFields(t *testing.T) {
	want := models.MPricingData{
		ID:               "AAPL260116C00200000",
		Price:            12.5,
		QuoteType:        models.QuoteTypeOption,
		StrikePrice:      200,
		ExpireDate:       1768521600,
		UnderlyingSymbol: "AAPL",
		OpenInterest:     4210,
		OptionsType:      models.OptionTypePut,
		MiniOption:       0,
		Bid:              12.4,
		BidSize:          10,
		Ask:              12.6,
		AskSize:          12,
	}

	got, err := streaming.DecodePricingData(streaming.EncodePricingData(want))
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tick mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeSkipsUnknownAndMistypedFields(t *testing.T) {
	b := streaming.EncodePricingData(models.MPricingData{ID: "AAPL", Price: 190.25})
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)
	// price sent as a string is ignored
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, "oops")

	got, err := streaming.DecodePricingData(b)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.ID)
	assert.Equal(t, float32(190.25), got.Price)
}

func TestDecodeUnpaddedBase64(t *testing.T) {
	raw := streaming.EncodePricingData(models.MPricingData{ID: "MSFT"})
	got, err := streaming.DecodePricingMessage(base64.RawStdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, "MSFT", got.ID)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := streaming.DecodePricingMessage("%%%")
	assert.Error(t, err)

	_, err = streaming.DecodePricingMessage(base64.StdEncoding.EncodeToString([]byte{0xff}))
	assert.Error(t, err)

	_, err = streaming.DecodeEnvelope([]byte(`{"message":"x"}`))
	assert.Error(t, err)

	_, err = streaming.DecodeEnvelope([]byte(`nope`))
	assert.Error(t, err)
}
