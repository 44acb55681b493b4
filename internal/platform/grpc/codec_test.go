package grpc

import (
	"testing"

	"google.golang.org/grpc/encoding"
)

type codecMessage struct {
	EventID string `json:"event_id"`
	Count   int    `json:"count"`
}

func TestJSONCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(JSONCodecName)
	if codec == nil {
		t.Fatal("expected json codec to be registered")
	}

	data, err := codec.Marshal(&codecMessage{EventID: "e1", Count: 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got codecMessage
	if err := codec.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventID != "e1" || got.Count != 2 {
		t.Fatalf("decoded = %+v", got)
	}
}

func TestJSONCodecEmptyPayloadLeavesZeroValue(t *testing.T) {
	var got codecMessage
	if err := (jsonCodec{}).Unmarshal(nil, &got); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if got != (codecMessage{}) {
		t.Fatalf("expected zero value, got %+v", got)
	}
}

func TestJSONCodecRejectsMalformedPayload(t *testing.T) {
	var got codecMessage
	if err := (jsonCodec{}).Unmarshal([]byte("{"), &got); err == nil {
		t.Fatal("expected malformed payload error")
	}
}
