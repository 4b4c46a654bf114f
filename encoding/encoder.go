package encoding

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	jsonenc "github.com/effective-security/llmswitch/encoding/json"
	textenc "github.com/effective-security/llmswitch/encoding/text"
	tomlenc "github.com/effective-security/llmswitch/encoding/toml"
	yamlenc "github.com/effective-security/llmswitch/encoding/yaml"
	"github.com/go-playground/validator/v10"
)

// Encoder marshals the results and unmarshals the requests
type Encoder interface {
	Marshal(v any) ([]byte, error)
	Unmarshal([]byte, any) error
	ContentType() string
}

type Mode = string

const (
	ModeText Mode = "text"
	ModeJSON Mode = "json"
	ModeYAML Mode = "yaml"
	ModeTOML Mode = "toml"
)

// Modes lists the supported modes
var Modes = []Mode{ModeText, ModeJSON, ModeYAML, ModeTOML}

// ModeDefault is the default mode for the encoder.
var ModeDefault = ModeText

// ErrUnsupportedMode is returned for an unknown encoding mode
var ErrUnsupportedMode = errors.New("unsupported encoding")

// ErrInvalidRequest is returned when the decoded value fails validation
var ErrInvalidRequest = errors.New("invalid request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewEncoder returns the encoder for the mode, empty mode returns ModeDefault
func NewEncoder(mode Mode) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "":
		return NewEncoder(ModeDefault)
	case ModeText, "plain_text":
		return textenc.NewEncoder(), nil
	case ModeJSON:
		return jsonenc.NewEncoder(), nil
	case ModeYAML, "yml":
		return yamlenc.NewEncoder(), nil
	case ModeTOML:
		return tomlenc.NewEncoder(), nil
	}
	return nil, errors.WithHintf(
		errors.WithMessagef(ErrUnsupportedMode, "%q", mode),
		"supported formats: %s", strings.Join(Modes, ", "))
}

// Decode unmarshals bs into the struct pointer v and validates its tags
func Decode(enc Encoder, bs []byte, v any) error {
	if err := enc.Unmarshal(bs, v); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to decode"), ErrInvalidRequest)
	}
	return Validate(v)
}

// Validate validates the `validate` tags of the struct
func Validate(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := fe.Field() + " is " + fe.Tag()
		if fe.Param() != "" {
			msg += " " + fe.Param()
		}
		return errors.WithMessage(ErrInvalidRequest, strings.ToLower(msg))
	}
	return errors.Mark(errors.Wrap(err, "failed to validate"), ErrInvalidRequest)
}
