// Package connect provides the Connect RPC control API.
package connect

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec marshals plain Go message structs as JSON.
// It replaces connect's protobuf JSON codec, which needs generated messages.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// WithJSON configures a handler or client to use the JSON codec.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
