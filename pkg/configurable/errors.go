package configurable

import (
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrDuplicateKey is returned when a variant key is registered twice.
	ErrDuplicateKey = errors.New("duplicate variant key")
	// ErrEmptyKey is returned when a variant is registered without a key.
	ErrEmptyKey = errors.New("empty variant key")
	// ErrMultipleDefaults is returned when a second variant is marked as default.
	ErrMultipleDefaults = errors.New("multiple default variants")
	// ErrNoDefault is returned when the router has no default variant.
	ErrNoDefault = errors.New("no default variant")
	// ErrUnknownVariant is returned when the selected key is not registered.
	ErrUnknownVariant = errors.New("unknown variant")
)

// IsConfigError returns true if err is one of the local, non-retryable
// configuration or resolution errors.
func IsConfigError(err error) bool {
	return errors.IsAny(err,
		ErrDuplicateKey,
		ErrEmptyKey,
		ErrMultipleDefaults,
		ErrNoDefault,
		ErrUnknownVariant,
	)
}

// HintOf returns the remediation hints attached to err,
// one per line, or empty string.
func HintOf(err error) string {
	if err == nil {
		return ""
	}
	return strings.Join(errors.GetAllHints(err), "\n")
}
