package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue(map[string]interface{}{"market_id": "M1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(b) != `{"market_id":"M1"}` {
		t.Fatalf("unexpected payload %s", b)
	}
	raw, _ := encodeValue([]byte("x"))
	if string(raw) != "x" {
		t.Fatalf("bytes should pass through")
	}
}

func TestParseCompression(t *testing.T) {
	if parseCompression("zstd") != kafkago.Zstd {
		t.Fatalf("zstd not mapped")
	}
	if parseCompression("bogus") != kafkago.Gzip {
		t.Fatalf("unknown should fall back to gzip")
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestBackoffWithJitterBounded(t *testing.T) {
	min, max := 10*time.Millisecond, 80*time.Millisecond
	for attempt := 1; attempt < 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}
