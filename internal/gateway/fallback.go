package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobmcallan/vire-gateway/internal/cache"
	"github.com/bobmcallan/vire-gateway/internal/common"
)

const (
	IntradayCapability = "get_quote_intraday_price"
	HistoryCapability  = "get_quote_history_price"

	quoteCachePrefix    = "quote:"
	defaultOutputFormat = "json"
	historyInterval     = "1D"
	dateLayout          = "2006-01-02"
)

// symbolKeys are the argument names a caller may use for the ticker.
var symbolKeys = []string{"symbol", "symbols", "symbol_list", "stock", "stocks"}

// IntradayFallback wraps the intraday price capability. When the primary
// call fails, returns nothing or panics, the last closing prices are
// fetched from the history capability instead.
type IntradayFallback struct {
	primary Operation
	caller  Caller
	hours   TradingHours
	days    int
	now     func() time.Time
	quotes  cache.Store
	logger  *common.Logger
}

// NewIntradayFallback wraps primary. quotes may be nil.
func NewIntradayFallback(primary Operation, caller Caller, hours TradingHours, days int, now func() time.Time, quotes cache.Store, logger *common.Logger) *IntradayFallback {
	if days <= 0 {
		days = 7
	}
	if now == nil {
		now = time.Now
	}
	return &IntradayFallback{
		primary: primary,
		caller:  caller,
		hours:   hours,
		days:    days,
		now:     now,
		quotes:  quotes,
		logger:  logger,
	}
}

func (f *IntradayFallback) Name() string           { return f.primary.Name() }
func (f *IntradayFallback) Descriptor() Descriptor { return f.primary.Descriptor() }

func (f *IntradayFallback) Call(ctx context.Context, args map[string]any) Result {
	now := f.now()
	result, panicked := f.callPrimary(ctx, args)

	var reason string
	switch {
	case panicked:
		reason = "primary panicked"
	case result.Err != nil:
		reason = result.Err.Message
	case isErrorStructure(result.Content):
		reason = "error structure in result"
	case isEmpty(result.Content):
		reason = "empty result"
	default:
		return result
	}

	f.logger.Info().
		Str("capability", f.Name()).
		Str("reason", reason).
		Bool("market_open", f.hours.IsOpen(now)).
		Msg("intraday price unavailable, falling back to closing price")
	return f.history(ctx, args, now)
}

func (f *IntradayFallback) callPrimary(ctx context.Context, args map[string]any) (result Result, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().Str("capability", f.Name()).Str("panic", fmt.Sprint(r)).Msg("intraday capability panicked")
			result, panicked = Result{}, true
		}
	}()
	return f.primary.Call(ctx, args), false
}

func (f *IntradayFallback) history(ctx context.Context, args map[string]any, now time.Time) Result {
	symbol := symbolArg(args)
	format := f.outputFormat(args)
	local := f.hours.local(now)
	end := local.Format(dateLayout)
	start := local.AddDate(0, 0, -f.days).Format(dateLayout)

	key := cache.MakeKey("quote", symbol, format, end)
	if f.quotes != nil {
		if b, ok := f.quotes.Get(ctx, key); ok {
			var content any
			if json.Unmarshal(b, &content) == nil {
				f.logger.Debug().Str("symbol", symbol).Msg("closing price served from cache")
				return Result{Content: content}
			}
		}
	}

	value, err := f.caller.Call(ctx, methodToolsCall, map[string]any{
		"name": HistoryCapability,
		"arguments": map[string]any{
			"symbol":        symbol,
			"start_date":    start,
			"end_date":      end,
			"interval":      historyInterval,
			"output_format": format,
		},
	})
	if err != nil {
		ge := asError(err, KindTransport)
		return Result{Err: &Error{
			Kind:         ge.Kind,
			Message:      fmt.Sprintf("failed to get closing price: %s", ge.Message),
			Code:         ge.Code,
			Capability:   HistoryCapability,
			FallbackFrom: IntradayCapability,
			cause:        ge,
		}}
	}

	content := ReduceContent(value)
	if m, ok := errorObject(content); ok {
		ge := structuredFailure(m, HistoryCapability)
		ge.Message = fmt.Sprintf("failed to get closing price: %s", ge.Message)
		ge.FallbackFrom = IntradayCapability
		return Result{Err: ge}
	}
	if f.quotes != nil && !isEmpty(content) {
		if b, err := json.Marshal(content); err == nil {
			f.quotes.Set(ctx, key, b)
		}
	}
	return Result{Content: content}
}

func isErrorStructure(v any) bool {
	_, ok := errorObject(v)
	return ok
}

// outputFormat uses the caller's format, then the declared default.
func (f *IntradayFallback) outputFormat(args map[string]any) string {
	if v, ok := args["output_format"]; ok && v != nil {
		if s := stringify(coerceString(v)); s != "" {
			return s
		}
	}
	if p, ok := f.primary.Descriptor().Parameter("output_format"); ok && p.HasDefault {
		return stringify(p.Default)
	}
	return defaultOutputFormat
}

// symbolArg finds the ticker under any accepted name, taking the first
// element of a list.
func symbolArg(args map[string]any) string {
	for _, k := range symbolKeys {
		if v, ok := args[k]; ok && v != nil {
			return stringify(coerceString(v))
		}
	}
	return ""
}

// invalidateQuotes drops cached closing prices.
func invalidateQuotes(ctx context.Context, quotes cache.Store) {
	if quotes != nil {
		quotes.InvalidatePrefix(ctx, quoteCachePrefix)
	}
}
