package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"optionflow/internal/domain"
)

// Streaming services on the subscription protocol boundary.
const (
	ServiceAdmin     = "ADMIN"
	ServiceHeartbeat = "HEARTBEAT"
	ServiceOptions   = "LEVELONE_OPTIONS"
	ServiceEquities  = "LEVELONE_EQUITIES"

	serviceInvalid = "Invalid Service"
)

// FieldMap binds the protocol's positional field numbers to semantic
// fields. The positions are contract-defined integers held as
// configuration, never inferred at runtime.
type FieldMap struct {
	OptionMark      int `yaml:"option_mark" default:"37"`
	OptionQuoteTime int `yaml:"option_quote_time" default:"38"`
	EquityLast      int `yaml:"equity_last" default:"3"`
	EquityQuoteTime int `yaml:"equity_quote_time" default:"35"`
}

// DefaultFieldMap returns the positions the feed publishes today.
func DefaultFieldMap() FieldMap {
	return FieldMap{OptionMark: 37, OptionQuoteTime: 38, EquityLast: 3, EquityQuoteTime: 35}
}

// OptionFields is the comma-joined field list for an options SUBS
// request. Position 0 is always the symbol key.
func (m FieldMap) OptionFields() string {
	return fmt.Sprintf("0,%d,%d", m.OptionMark, m.OptionQuoteTime)
}

// EquityFields is the comma-joined field list for an equities SUBS
// request.
func (m FieldMap) EquityFields() string {
	return fmt.Sprintf("0,%d,%d", m.EquityLast, m.EquityQuoteTime)
}

// request is one outbound command on the streaming connection.
type request struct {
	Service    string            `json:"service"`
	Command    string            `json:"command"`
	RequestID  int               `json:"requestid"`
	CustomerID string            `json:"SchwabClientCustomerId"`
	CorrelID   string            `json:"SchwabClientCorrelId"`
	Parameters map[string]string `json:"parameters"`
}

func encodeRequests(reqs ...request) ([]byte, error) {
	payload, err := json.Marshal(struct {
		Requests []request `json:"requests"`
	}{Requests: reqs})
	if err != nil {
		return nil, fmt.Errorf("encode stream request: %w", err)
	}
	return payload, nil
}

// inboundFrame is the envelope of a data push from the feed.
type inboundFrame struct {
	Data []struct {
		Service string                   `json:"service"`
		Content []map[string]interface{} `json:"content"`
	} `json:"data"`
}

// decodeTicks extracts raw ticks from one inbound frame. The second
// return is true when the feed reported a fatal condition and the
// connection should be torn down. Entries with no usable price are
// skipped, not fatal.
func decodeTicks(raw []byte, fields FieldMap, receivedAt time.Time) ([]*domain.RawTick, bool, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, false, fmt.Errorf("decode inbound frame: %w", err)
	}

	receivedMs := receivedAt.UnixMilli()
	var ticks []*domain.RawTick
	for _, blk := range frame.Data {
		switch blk.Service {
		case ServiceAdmin, ServiceHeartbeat:
			continue
		case serviceInvalid:
			return ticks, true, nil
		case ServiceOptions:
			for _, content := range blk.Content {
				key, _ := content["key"].(string)
				mark, ok := asFloat(content[strconv.Itoa(fields.OptionMark)])
				if key == "" || !ok {
					continue
				}
				quoteMs, _ := asInt64(content[strconv.Itoa(fields.OptionQuoteTime)])
				ticks = append(ticks, &domain.RawTick{
					Symbol:       key,
					Service:      ServiceOptions,
					Mark:         mark,
					QuoteTimeMs:  quoteMs,
					ReceivedAtMs: receivedMs,
				})
			}
		case ServiceEquities:
			for _, content := range blk.Content {
				key, _ := content["key"].(string)
				last, ok := asFloat(content[strconv.Itoa(fields.EquityLast)])
				if key == "" || !ok {
					continue
				}
				quoteMs, _ := asInt64(content[strconv.Itoa(fields.EquityQuoteTime)])
				ticks = append(ticks, &domain.RawTick{
					Symbol:       key,
					Service:      ServiceEquities,
					Mark:         last,
					QuoteTimeMs:  quoteMs,
					ReceivedAtMs: receivedMs,
				})
			}
		}
	}
	return ticks, false, nil
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
