package yaml

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

type Encoder struct{}

func NewEncoder() *Encoder {
	return new(Encoder)
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	return yaml.Unmarshal(trimBackticks(bs), ret)
}

func (e *Encoder) ContentType() string {
	return "application/yaml"
}

var backtick = []byte("```")

// trimBackticks removes the ```yaml fence
func trimBackticks(bs []byte) []byte {
	start := bytes.Index(bs, backtick)
	if start == -1 {
		return bs
	}
	bs = bs[start+len(backtick):]
	if nl := bytes.IndexByte(bs, '\n'); nl != -1 {
		bs = bs[nl+1:]
	}
	if end := bytes.LastIndex(bs, backtick); end != -1 {
		bs = bs[:end]
	}
	return bs
}
