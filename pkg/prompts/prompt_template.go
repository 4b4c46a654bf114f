package prompts

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/pkg/llms"
)

// PromptTemplate contains common fields for all prompt templates.
type PromptTemplate struct {
	// Template is the prompt template.
	Template string `json:"template" yaml:"template"`

	// TemplateFormat is the format of the template.
	TemplateFormat TemplateFormat `json:"template_format,omitempty" yaml:"template_format,omitempty"`

	// InputVariables is a list of variable names the template expects.
	InputVariables []string `json:"input_variables,omitempty" yaml:"input_variables,omitempty"`

	// PartialVariables represents a map of variable names to values
	// that are used to fill in the template when no value is provided.
	PartialVariables map[string]any `json:"partial_variables,omitempty" yaml:"partial_variables,omitempty"`
}

// NewPromptTemplate returns a new f-string prompt template.
func NewPromptTemplate(template string, inputVars []string) PromptTemplate {
	return PromptTemplate{
		Template:       template,
		InputVariables: inputVars,
		TemplateFormat: TemplateFormatFString,
	}
}

// FromTemplate returns a new f-string prompt template,
// the input variables are discovered from the template.
func FromTemplate(template string) (PromptTemplate, error) {
	vars, err := FStringVariables(template)
	if err != nil {
		return PromptTemplate{}, err
	}
	return NewPromptTemplate(template, vars), nil
}

// Format formats the prompt template and returns a string value.
func (p PromptTemplate) Format(values map[string]any) (string, error) {
	resolvedValues, err := resolvePartialValues(p.PartialVariables, values)
	if err != nil {
		return "", err
	}
	for _, v := range p.InputVariables {
		if _, ok := resolvedValues[v]; !ok {
			return "", errors.WithMessagef(ErrMissingVariable, "%q", v)
		}
	}

	format := p.TemplateFormat
	if format == "" {
		format = TemplateFormatFString
	}
	return RenderTemplate(p.Template, format, resolvedValues)
}

// FormatPrompt formats the prompt template and returns a string prompt value.
func (p PromptTemplate) FormatPrompt(values map[string]any) (llms.PromptValue, error) {
	f, err := p.Format(values)
	if err != nil {
		return nil, err
	}
	return StringPromptValue(f), nil
}

// GetInputVariables returns the input variables the prompt expect.
func (p PromptTemplate) GetInputVariables() []string {
	return slices.Clone(p.InputVariables)
}

// Validate checks the template can be rendered with its input variables.
func (p PromptTemplate) Validate() error {
	format := p.TemplateFormat
	if format == "" {
		format = TemplateFormatFString
	}
	vars := p.GetInputVariables()
	for k := range p.PartialVariables {
		vars = append(vars, k)
	}
	return CheckValidTemplate(p.Template, format, vars)
}

func resolvePartialValues(partialValues map[string]any, values map[string]any) (map[string]any, error) {
	resolvedValues := make(map[string]any, len(partialValues)+len(values))
	for variable, value := range partialValues {
		switch value := value.(type) {
		case string:
			resolvedValues[variable] = value
		case func() string:
			resolvedValues[variable] = value()
		default:
			return nil, errors.Errorf("invalid partial variable type: %q", variable)
		}
	}
	for variable, value := range values {
		resolvedValues[variable] = value
	}
	return resolvedValues, nil
}

// StringPromptValue is a prompt value that is a string.
type StringPromptValue string

var _ llms.PromptValue = StringPromptValue("")

func (v StringPromptValue) String() string {
	return string(v)
}

// Messages returns a single-element Message slice.
func (v StringPromptValue) Messages() []llms.Message {
	return []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, string(v)),
	}
}
