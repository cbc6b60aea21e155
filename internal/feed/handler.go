package feed

import (
	"encoding/json"

	"marketscan/internal/stream"

	"go.uber.org/zap"
)

// message type codes on the Alpaca data stream.
var messageTypes = map[string]stream.DataType{
	"t": stream.DataTypeTrade,
	"q": stream.DataTypeQuote,
	"b": stream.DataTypeBar,
}

// MakeMessageHandler returns a function that handles incoming WebSocket
// messages by parsing data payloads into stream records and routing them to
// the registry. Control messages (acks, errors) are logged and skipped. No
// failure escapes the handler; malformed records are dropped and counted by
// the registry.
func MakeMessageHandler(logger *zap.Logger, registry *stream.Registry) func(msg []byte) {
	return func(msg []byte) {
		// Stream messages arrive as a JSON array of heterogeneous objects.
		var items []map[string]any
		if err := json.Unmarshal(msg, &items); err != nil {
			logger.Warn("failed to parse stream payload", zap.Error(err))
			return
		}

		for _, item := range items {
			code, _ := item["T"].(string)
			dataType, ok := messageTypes[code]
			if !ok {
				handleControl(logger, code, item)
				continue
			}

			symbol, _ := item["S"].(string)
			if symbol == "" {
				logger.Warn("data message without symbol", zap.String("type", code))
				continue
			}

			// A record whose timestamp fails to parse keeps a zero instant;
			// the registry drops and counts it rather than poisoning the
			// buffer with an epoch timestamp.
			ts, err := stream.ParseTimestamp(item["t"])
			if err != nil {
				logger.Warn("unparsable record timestamp",
					zap.String("symbol", symbol),
					zap.String("type", code))
			}

			fields := make(map[string]any, len(item))
			for k, v := range item {
				if k == "T" || k == "S" || k == "t" {
					continue
				}
				fields[k] = v
			}

			registry.Route(stream.Record{
				Symbol:    symbol,
				DataType:  dataType,
				Timestamp: ts,
				Fields:    fields,
			})
		}
	}
}

func handleControl(logger *zap.Logger, code string, item map[string]any) {
	switch code {
	case "success", "subscription":
		logger.Debug("stream control message", zap.String("type", code))
	case "error":
		logger.Warn("stream error message", zap.Any("message", item["msg"]), zap.Any("code", item["code"]))
	default:
		logger.Debug("ignoring unknown stream message", zap.String("type", code))
	}
}
