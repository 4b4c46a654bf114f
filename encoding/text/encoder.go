package text

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

type Unmarshaler interface {
	Unmarshal(bs []byte) error
}

// Encoder writes the String() form of the values,
// one per line for lists.
type Encoder struct{}

func NewEncoder() *Encoder {
	return new(Encoder)
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	switch s := v.(type) {
	case fmt.Stringer:
		return []byte(s.String()), nil
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	case *string:
		return []byte(*s), nil
	case []string:
		var b bytes.Buffer
		for _, line := range s {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		return b.Bytes(), nil
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		var b bytes.Buffer
		for i := range rv.Len() {
			item, err := e.Marshal(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			b.Write(item)
			if !bytes.HasSuffix(item, []byte{'\n'}) {
				b.WriteByte('\n')
			}
		}
		return b.Bytes(), nil
	}
	return json.MarshalIndent(v, "", "  ")
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	switch s := ret.(type) {
	case Unmarshaler:
		return s.Unmarshal(bs)
	case *string:
		*s = string(bs)
	case *[]byte:
		*s = bs
	default:
		return json.Unmarshal(bs, ret)
	}
	return nil
}

func (e *Encoder) ContentType() string {
	return "text/plain; charset=utf-8"
}
