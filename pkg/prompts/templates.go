package prompts

import (
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/nikolalohinski/gonja"
	"github.com/nikolalohinski/gonja/config"
)

// ErrInvalidTemplateFormat is the error when the template format is invalid and
// not supported.
var ErrInvalidTemplateFormat = errors.New("invalid template format")

// ErrMissingVariable is returned when a template variable has no value.
var ErrMissingVariable = errors.New("missing template variable")

// jinja2 renders undefined names as an error, not as an empty string
var jinja2Env = func() *gonja.Environment {
	cfg := config.NewConfig()
	cfg.StrictUndefined = true
	return gonja.NewEnvironment(cfg, gonja.DefaultLoader)
}()

// TemplateFormat is the format of the template.
type TemplateFormat string

const (
	// TemplateFormatFString is the format for python style templates: `{question}`.
	TemplateFormatFString TemplateFormat = "f-string"
	// TemplateFormatGoTemplate is the format for go-template.
	TemplateFormatGoTemplate TemplateFormat = "go-template"
	// TemplateFormatJinja2 is the format for jinja2.
	TemplateFormatJinja2 TemplateFormat = "jinja2"
)

// ParseTemplateFormat returns the format, empty value selects f-string.
func ParseTemplateFormat(s string) (TemplateFormat, error) {
	switch f := TemplateFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", "fstring", TemplateFormatFString:
		return TemplateFormatFString, nil
	case "go", "gotemplate", TemplateFormatGoTemplate:
		return TemplateFormatGoTemplate, nil
	case TemplateFormatJinja2:
		return TemplateFormatJinja2, nil
	}
	return "", errors.WithMessagef(ErrInvalidTemplateFormat, "unsupported format %q", s)
}

// RenderTemplate renders the template with the given values.
func RenderTemplate(tmpl string, format TemplateFormat, values map[string]any) (string, error) {
	switch format {
	case TemplateFormatFString:
		return interpolateFString(tmpl, values)
	case TemplateFormatGoTemplate:
		return interpolateGoTemplate(tmpl, values)
	case TemplateFormatJinja2:
		return interpolateJinja2(tmpl, values)
	}
	return "", errors.WithMessagef(ErrInvalidTemplateFormat, "unsupported format %q", format)
}

// CheckValidTemplate checks if the template is valid through checking whether the given
// TemplateFormat is available and whether the template can be rendered.
func CheckValidTemplate(tmpl string, format TemplateFormat, inputVariables []string) error {
	dummyInputs := make(map[string]any, len(inputVariables))
	for _, v := range inputVariables {
		dummyInputs[v] = "foo"
	}
	_, err := RenderTemplate(tmpl, format, dummyInputs)
	return err
}

func interpolateGoTemplate(tmpl string, values map[string]any) (string, error) {
	parsed, err := template.New("template").
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}
	sb := new(strings.Builder)
	err = parsed.Execute(sb, values)
	if err != nil {
		if strings.Contains(err.Error(), "map has no entry for key") {
			return "", errors.Mark(errors.Wrap(err, "failed to render template"), ErrMissingVariable)
		}
		return "", errors.Wrap(err, "failed to render template")
	}
	return sb.String(), nil
}

func interpolateJinja2(tmpl string, values map[string]any) (string, error) {
	tpl, err := jinja2Env.FromString(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}
	out, err := tpl.Execute(values)
	if err != nil {
		if strings.Contains(err.Error(), "Unable to evaluate") {
			return "", errors.Mark(errors.Wrap(err, "failed to render template"), ErrMissingVariable)
		}
		return "", errors.Wrap(err, "failed to render template")
	}
	return out, nil
}

// interpolateFString renders `{name}` placeholders,
// `{{` and `}}` are the escaped braces.
func interpolateFString(tmpl string, values map[string]any) (string, error) {
	var sb strings.Builder
	err := scanFString(tmpl, func(literal string) {
		sb.WriteString(literal)
	}, func(name string) error {
		v, ok := values[name]
		if !ok {
			return errors.WithMessagef(ErrMissingVariable, "%q", name)
		}
		sb.WriteString(stringify(v))
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// FStringVariables returns the sorted unique variable names
// of the f-string template.
func FStringVariables(tmpl string) ([]string, error) {
	var vars []string
	err := scanFString(tmpl, func(string) {}, func(name string) error {
		if !slices.Contains(vars, name) {
			vars = append(vars, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(vars)
	return vars, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func scanFString(tmpl string, onLiteral func(string), onVar func(string) error) error {
	runes := []rune(tmpl)
	var literal strings.Builder
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '{':
			if i+1 < len(runes) && runes[i+1] == '{' {
				literal.WriteRune('{')
				i++
				continue
			}
			end := i + 1
			for end < len(runes) && runes[end] != '}' {
				end++
			}
			if end == len(runes) {
				return errors.Errorf("single '{' in template at position %d", i)
			}
			name := strings.TrimSpace(string(runes[i+1 : end]))
			if name == "" {
				return errors.Errorf("empty variable name in template at position %d", i)
			}
			onLiteral(literal.String())
			literal.Reset()
			if err := onVar(name); err != nil {
				return err
			}
			i = end
		case '}':
			if i+1 < len(runes) && runes[i+1] == '}' {
				literal.WriteRune('}')
				i++
				continue
			}
			return errors.Errorf("single '}' in template at position %d", i)
		default:
			literal.WriteRune(c)
		}
	}
	onLiteral(literal.String())
	return nil
}
