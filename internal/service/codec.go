package service

import (
	"encoding/json"
	"fmt"
)

// jsonCodec encodes plain Go structs with encoding/json. It replaces
// Connect's protobuf JSON codec under the same name, so clients and servers
// both speak application/json. Money stays in integer cents on the wire.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("decode %T: %w", msg, err)
	}
	return nil
}
