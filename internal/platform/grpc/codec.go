package grpc

import (
	"encoding/json"
	"fmt"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// JSONCodecName is the gRPC content-subtype used by attendmark services.
// Messages are plain Go structs, so they travel as JSON instead of protobuf.
const JSONCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return JSONCodecName
}

// JSONCallOption selects the JSON codec for a client call.
func JSONCallOption() gogrpc.CallOption {
	return gogrpc.CallContentSubtype(JSONCodecName)
}
