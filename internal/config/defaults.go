package config

import "github.com/bobmcallan/vire-gateway/internal/common"

// DefaultStubCapabilities are the capabilities the calling layer depends on
// most; they stay callable even when the peer is unreachable.
var DefaultStubCapabilities = []string{
	"get_quote_intraday_price",
	"get_quote_history_price",
	"get_price_board",
	"get_company_overview",
	"get_company_news",
	"get_quote_price_depth",
}

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "prod",
		Server: ServerConfig{
			Host:        "localhost",
			Port:        4250,
			CORSOrigins: []string{"*"},
		},
		Peer: PeerConfig{
			URL:               "https://mcp-server-vietnam-stock-trading.onrender.com",
			Timeout:           60,
			Routes:            []string{"/mcp", "/"},
			HandshakeAttempts: 3,
			BackoffUnit:       "1s",
			ProtocolVersion:   "2024-11-05",
			ClientName:        "vire-gateway",
			ClientVersion:     "1.0.0",
		},
		Gateway: GatewayConfig{
			StubCapabilities: append([]string(nil), DefaultStubCapabilities...),
			FailureKeywords:  []string{"error", "failed"},
			FallbackDays:     7,
		},
		Market: MarketConfig{
			Timezone:  "Asia/Ho_Chi_Minh",
			OpenHour:  9,
			CloseHour: 15,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        "10m",
			MaxEntries: 500,
		},
		Logging: common.LoggingConfig{
			Level:   "info",
			Outputs: []string{"console"},
		},
	}
}
