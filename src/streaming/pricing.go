package streaming

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"yfinance-observer/src/models"

	"github.com/segmentio/encoding/json"
	"google.golang.org/protobuf/encoding/protowire"
)

// MessageTypePricing is the envelope type carrying a PricingData payload.
const MessageTypePricing = "pricing"

// Envelope is one inbound text frame.
type Envelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DecodeEnvelope parses {"type": ..., "message": ...}.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("envelope has no type")
	}
	return env, nil
}

// DecodePricingMessage base64-decodes message and parses the PricingData
// wire bytes.
func DecodePricingMessage(message string) (models.MPricingData, error) {
	raw, err := decodeBase64(message)
	if err != nil {
		return models.MPricingData{}, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return DecodePricingData(raw)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// EncodePricingMessage is the inverse of DecodePricingMessage.
func EncodePricingMessage(p models.MPricingData) string {
	return base64.StdEncoding.EncodeToString(EncodePricingData(p))
}

// -----------------------------------------------------------------------------
// PricingData field tables
// -----------------------------------------------------------------------------

type (
	stringField  func(*models.MPricingData) *string
	float32Field func(*models.MPricingData) *float32
	float64Field func(*models.MPricingData) *float64
	sint64Field  func(*models.MPricingData) *int64
	enumField    struct {
		get func(*models.MPricingData) int32
		set func(*models.MPricingData, int32)
	}
)

var stringFields = map[protowire.Number]stringField{
	1:  func(p *models.MPricingData) *string { return &p.ID },
	4:  func(p *models.MPricingData) *string { return &p.Currency },
	5:  func(p *models.MPricingData) *string { return &p.Exchange },
	13: func(p *models.MPricingData) *string { return &p.ShortName },
	18: func(p *models.MPricingData) *string { return &p.UnderlyingSymbol },
	30: func(p *models.MPricingData) *string { return &p.FromCurrency },
	31: func(p *models.MPricingData) *string { return &p.LastMarket },
}

var float32Fields = map[protowire.Number]float32Field{
	2:  func(p *models.MPricingData) *float32 { return &p.Price },
	8:  func(p *models.MPricingData) *float32 { return &p.ChangePercent },
	10: func(p *models.MPricingData) *float32 { return &p.DayHigh },
	11: func(p *models.MPricingData) *float32 { return &p.DayLow },
	12: func(p *models.MPricingData) *float32 { return &p.Change },
	15: func(p *models.MPricingData) *float32 { return &p.OpenPrice },
	16: func(p *models.MPricingData) *float32 { return &p.PreviousClose },
	17: func(p *models.MPricingData) *float32 { return &p.StrikePrice },
	23: func(p *models.MPricingData) *float32 { return &p.Bid },
	25: func(p *models.MPricingData) *float32 { return &p.Ask },
}

var float64Fields = map[protowire.Number]float64Field{
	32: func(p *models.MPricingData) *float64 { return &p.CirculatingSupply },
	33: func(p *models.MPricingData) *float64 { return &p.MarketCap },
}

var sint64Fields = map[protowire.Number]sint64Field{
	3:  func(p *models.MPricingData) *int64 { return &p.Time },
	9:  func(p *models.MPricingData) *int64 { return &p.DayVolume },
	14: func(p *models.MPricingData) *int64 { return &p.ExpireDate },
	19: func(p *models.MPricingData) *int64 { return &p.OpenInterest },
	21: func(p *models.MPricingData) *int64 { return &p.MiniOption },
	22: func(p *models.MPricingData) *int64 { return &p.LastSize },
	24: func(p *models.MPricingData) *int64 { return &p.BidSize },
	26: func(p *models.MPricingData) *int64 { return &p.AskSize },
	27: func(p *models.MPricingData) *int64 { return &p.PriceHint },
	28: func(p *models.MPricingData) *int64 { return &p.Vol24Hr },
	29: func(p *models.MPricingData) *int64 { return &p.VolAllCurrencies },
}

var enumFields = map[protowire.Number]enumField{
	6: {
		get: func(p *models.MPricingData) int32 { return int32(p.QuoteType) },
		set: func(p *models.MPricingData, v int32) { p.QuoteType = models.QuoteType(v) },
	},
	7: {
		get: func(p *models.MPricingData) int32 { return int32(p.MarketHours) },
		set: func(p *models.MPricingData, v int32) { p.MarketHours = models.MarketHours(v) },
	},
	20: {
		get: func(p *models.MPricingData) int32 { return int32(p.OptionsType) },
		set: func(p *models.MPricingData, v int32) { p.OptionsType = models.OptionType(v) },
	},
}

// fieldOrder keeps encoding deterministic.
var fieldOrder = func() []protowire.Number {
	var nums []protowire.Number
	for n := protowire.Number(1); n <= 33; n++ {
		nums = append(nums, n)
	}
	return nums
}()

// -----------------------------------------------------------------------------

// DecodePricingData parses PricingData wire bytes. Unknown fields and fields
// arriving with an unexpected wire type are skipped.
func DecodePricingData(b []byte) (models.MPricingData, error) {
	var p models.MPricingData

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && stringFields[num] != nil:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return p, protowire.ParseError(m)
			}
			*stringFields[num](&p) = string(v)
			n = m

		case typ == protowire.Fixed32Type && float32Fields[num] != nil:
			v, m := protowire.ConsumeFixed32(b)
			if m < 0 {
				return p, protowire.ParseError(m)
			}
			*float32Fields[num](&p) = math.Float32frombits(v)
			n = m

		case typ == protowire.Fixed64Type && float64Fields[num] != nil:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return p, protowire.ParseError(m)
			}
			*float64Fields[num](&p) = math.Float64frombits(v)
			n = m

		case typ == protowire.VarintType && sint64Fields[num] != nil:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return p, protowire.ParseError(m)
			}
			*sint64Fields[num](&p) = protowire.DecodeZigZag(v)
			n = m

		case typ == protowire.VarintType && enumFields[num].set != nil:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return p, protowire.ParseError(m)
			}
			enumFields[num].set(&p, int32(v))
			n = m

		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
		}
		b = b[n:]
	}

	return p, nil
}

// -----------------------------------------------------------------------------

// EncodePricingData writes non-zero fields in field-number order.
func EncodePricingData(p models.MPricingData) []byte {
	var b []byte
	for _, num := range fieldOrder {
		if f, ok := stringFields[num]; ok {
			if v := *f(&p); v != "" {
				b = protowire.AppendTag(b, num, protowire.BytesType)
				b = protowire.AppendString(b, v)
			}
			continue
		}
		if f, ok := float32Fields[num]; ok {
			if v := *f(&p); v != 0 {
				b = protowire.AppendTag(b, num, protowire.Fixed32Type)
				b = protowire.AppendFixed32(b, math.Float32bits(v))
			}
			continue
		}
		if f, ok := float64Fields[num]; ok {
			if v := *f(&p); v != 0 {
				b = protowire.AppendTag(b, num, protowire.Fixed64Type)
				b = protowire.AppendFixed64(b, math.Float64bits(v))
			}
			continue
		}
		if f, ok := sint64Fields[num]; ok {
			if v := *f(&p); v != 0 {
				b = protowire.AppendTag(b, num, protowire.VarintType)
				b = protowire.AppendVarint(b, protowire.EncodeZigZag(v))
			}
			continue
		}
		if f, ok := enumFields[num]; ok {
			if v := f.get(&p); v != 0 {
				b = protowire.AppendTag(b, num, protowire.VarintType)
				b = protowire.AppendVarint(b, uint64(int64(v)))
			}
		}
	}
	return b
}
