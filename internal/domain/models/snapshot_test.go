package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSampleTimeUnusableValuesDecodeAsZero(t *testing.T) {
	for _, in := range []string{`0`, `-5`, `"not-a-time"`, `""`, `null`, `"0"`, `true`} {
		var raw RawSample
		if err := json.Unmarshal([]byte(`{"market_id":"m","timestamp":`+in+`}`), &raw); err != nil {
			t.Fatalf("timestamp %s: %v", in, err)
		}
		if !raw.Timestamp.IsZero() {
			t.Fatalf("timestamp %s decoded as %v, want zero", in, raw.Timestamp.Time)
		}
	}
}

func TestSampleTimeParses(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, in := range []string{`"2024-05-01T12:00:00Z"`, `1714564800`, `1714564800000`, `"1714564800"`} {
		var st SampleTime
		if err := json.Unmarshal([]byte(in), &st); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if !st.Equal(want) {
			t.Fatalf("%s decoded as %v", in, st.Time)
		}
	}
}

func TestDecodeRawSample(t *testing.T) {
	raw, err := DecodeRawSample([]byte(`{"market_id":"m1","market_price":"0.4"}`))
	if err == nil {
		t.Fatal("expected decode error for a string price")
	}
	if raw.MarketID != "m1" {
		t.Fatalf("market id = %q, want m1", raw.MarketID)
	}

	raw, err = DecodeRawSample([]byte(`{"market_id":"m2","market_price":0.4,"timestamp":"bogus"}`))
	if err != nil || raw.MarketID != "m2" || !raw.Timestamp.IsZero() {
		t.Fatalf("raw=%+v err=%v", raw, err)
	}
}
