// Package api defines the Hamori Connect RPC surface: message types,
// procedure names, and handler and client constructors for each service.
//
// Messages are plain Go structs carried as JSON. Every handler and client
// built here registers Codec under the "json" name, so both the Connect
// protocol and plain `curl -H 'Content-Type: application/json'` work.
package api

import (
	"connectrpc.com/connect"
	"github.com/goccy/go-json"
)

// Codec is a connect.Codec for plain structs using goccy/go-json.
type Codec struct{}

var _ connect.Codec = Codec{}

// Name implements connect.Codec.
func (Codec) Name() string { return "json" }

// Marshal implements connect.Codec.
func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements connect.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func handlerOptions(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
}
