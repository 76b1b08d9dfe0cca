package models

// -----------------------------------------------------------------------------
// Relay payload pushed to websocket clients
// -----------------------------------------------------------------------------

type MLatestData struct {
	Type      string                  `json:"type"` // "TICK" or "BARS"
	Ticks     []MPricingData          `json:"ticks,omitempty"`
	Bars      map[string][]MPriceBar  `json:"bars,omitempty"`
	Latest    map[string]MPricingData `json:"latest,omitempty"`
	Timestamp int64                   `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// SubscribeCommand for client messages
// -----------------------------------------------------------------------------

type MSubscribeCommand struct {
	Command    string   `json:"command"`
	ClientType string   `json:"clientType"`
	Symbols    []string `json:"symbols"`
}
