package toml

import (
	"bytes"
	"reflect"

	"github.com/BurntSushi/toml"
)

// ItemsKey is the table key of a top level list,
// TOML documents must be tables.
const ItemsKey = "items"

type Encoder struct{}

func NewEncoder() *Encoder {
	return new(Encoder)
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		v = map[string]any{ItemsKey: v}
	}

	var b bytes.Buffer
	enc := toml.NewEncoder(&b)
	enc.Indent = ""
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	return toml.Unmarshal(bytes.TrimSpace(bs), ret)
}

func (e *Encoder) ContentType() string {
	return "application/toml"
}
