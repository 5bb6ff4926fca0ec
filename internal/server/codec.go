package server

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// The vault API has no protobuf schema; messages are plain Go structs sent
// as JSON. Clients select the codec with grpc.CallContentSubtype(CodecName).
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
