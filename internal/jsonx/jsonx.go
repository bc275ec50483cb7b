// Package jsonx is the JSON codec for the websocket and REST hot paths.
package jsonx

import (
	"reflect"

	"github.com/bytedance/sonic"
)

var fast = sonic.ConfigDefault

func Marshal(v any) ([]byte, error) {
	return fast.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return fast.Unmarshal(data, v)
}

// Pretouch compiles codecs for the given types up front so the first frame
// does not pay for code generation. Errors are ignored.
func Pretouch(types ...reflect.Type) {
	for _, t := range types {
		_ = sonic.Pretouch(t)
	}
}
