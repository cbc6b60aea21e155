package feed

import (
	"testing"

	"marketscan/internal/stream"

	"go.uber.org/zap"
)

func startedRegistry(t *testing.T) *stream.Registry {
	t.Helper()
	r := stream.NewRegistry(zap.NewNop())
	err := r.Start(stream.StartOptions{
		Symbols:   []string{"AAPL"},
		DataTypes: []stream.DataType{stream.DataTypeTrade, stream.DataTypeQuote},
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return r
}

// go test -v --run TestHandlerRoutesTrades
func TestHandlerRoutesTrades(t *testing.T) {
	r := startedRegistry(t)
	handle := MakeMessageHandler(zap.NewNop(), r)

	handle([]byte(`[
		{"T":"t","S":"AAPL","t":"2026-03-15T14:30:05.123Z","p":187.15,"s":100},
		{"T":"q","S":"AAPL","t":"2026-03-15T14:30:05.200Z","bp":187.1,"ap":187.2}
	]`))

	buf := r.Buffer("AAPL", stream.DataTypeTrade)
	records := buf.All()
	if len(records) != 1 {
		t.Fatalf("expected 1 trade record, got %d", len(records))
	}
	rec := records[0]
	if rec.Symbol != "AAPL" || rec.DataType != stream.DataTypeTrade {
		t.Errorf("unexpected record identity: %+v", rec)
	}
	if rec.Timestamp.IsZero() {
		t.Error("timestamp not normalized")
	}
	if rec.Fields["p"] != 187.15 {
		t.Errorf("payload field lost: %v", rec.Fields)
	}
	// Envelope keys are stripped from the payload fields.
	for _, k := range []string{"T", "S", "t"} {
		if _, ok := rec.Fields[k]; ok {
			t.Errorf("envelope key %q leaked into fields", k)
		}
	}

	if got := len(r.Buffer("AAPL", stream.DataTypeQuote).All()); got != 1 {
		t.Errorf("expected 1 quote record, got %d", got)
	}
}

// go test -v --run TestHandlerControlMessages
func TestHandlerControlMessages(t *testing.T) {
	r := startedRegistry(t)
	handle := MakeMessageHandler(zap.NewNop(), r)

	handle([]byte(`[
		{"T":"success","msg":"authenticated"},
		{"T":"subscription","trades":["AAPL"]},
		{"T":"error","code":406,"msg":"connection limit exceeded"}
	]`))

	if got := r.TotalProcessed(); got != 0 {
		t.Errorf("control messages routed as data: %d", got)
	}
	if got := r.Unrouted(); got != 0 {
		t.Errorf("control messages counted as unrouted: %d", got)
	}
}

// go test -v --run TestHandlerBadTimestamp
func TestHandlerBadTimestamp(t *testing.T) {
	r := startedRegistry(t)
	handle := MakeMessageHandler(zap.NewNop(), r)

	handle([]byte(`[{"T":"t","S":"AAPL","t":"not-a-date","p":187.15}]`))

	// The record is dropped and counted; nothing reaches the buffer and the
	// handler never panics.
	if got := r.Dropped(); got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
	if got := len(r.Buffer("AAPL", stream.DataTypeTrade).All()); got != 0 {
		t.Errorf("bad-timestamp record buffered, count %d", got)
	}
}

// go test -v --run TestHandlerMalformedPayload
func TestHandlerMalformedPayload(t *testing.T) {
	r := startedRegistry(t)
	handle := MakeMessageHandler(zap.NewNop(), r)

	handle([]byte(`{"T":"t"}`)) // object, not the expected array
	handle([]byte(`not json`))
	handle([]byte(`[{"T":"t","t":"2026-03-15T14:30:05Z","p":1.0}]`)) // missing symbol

	if got := r.TotalProcessed(); got != 0 {
		t.Errorf("malformed payloads routed as data: %d", got)
	}
}

// go test -v --run TestHandlerUnsubscribedSymbol
func TestHandlerUnsubscribedSymbol(t *testing.T) {
	r := startedRegistry(t)
	handle := MakeMessageHandler(zap.NewNop(), r)

	handle([]byte(`[{"T":"t","S":"TSLA","t":"2026-03-15T14:30:05Z","p":412.0}]`))

	if got := r.Unrouted(); got != 1 {
		t.Errorf("Unrouted = %d, want 1", got)
	}
}
