// Package rpc holds the Connect plumbing shared by the service handlers.
// Messages are plain Go structs carried as JSON.
package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"connectrpc.com/connect"
)

// CodecName replaces Connect's protojson codec, so "application/json"
// requests reach JSONCodec.
const CodecName = "json"

// JSONCodec marshals request and response structs with encoding/json.
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

// Name implements connect.Codec.
func (JSONCodec) Name() string { return CodecName }

// Marshal implements connect.Codec.
func (JSONCodec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return data, nil
}

// Unmarshal implements connect.Codec. Unknown fields are rejected and an
// empty body decodes to the zero message.
func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	if dec.More() {
		return errors.New("unmarshal: trailing data after JSON message")
	}
	return nil
}

// Procedure builds a Connect procedure path such as
// "/capture.v1.CaptureService/ParseMessage".
func Procedure(service, method string) string {
	return "/" + service + "/" + method
}

// HandlerOptions prepends the JSON codec to opts.
func HandlerOptions(opts ...connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)
}
