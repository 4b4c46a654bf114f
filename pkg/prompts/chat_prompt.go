package prompts

import (
	"slices"
	"strings"

	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/llmswitch/pkg/llmutils"
)

var _ llms.PromptValue = ChatPromptValue{}

// ChatPromptValue is a prompt value that is a list of chat messages.
type ChatPromptValue []llms.Message

// String returns the chat message slice as a buffer string.
func (v ChatPromptValue) String() string {
	var buf strings.Builder
	llmutils.PrintMessages(&buf, v)
	return buf.String()
}

// Messages returns the ChatMessage slice.
func (v ChatPromptValue) Messages() []llms.Message {
	return v
}

// MessageFormatter is an interface for formatting a map of values into a list
// of messages.
type MessageFormatter interface {
	FormatMessages(values map[string]any) ([]llms.Message, error)
	GetInputVariables() []string
}

// MessagePromptTemplate renders a single message of the given role.
type MessagePromptTemplate struct {
	Role   llms.Role      `json:"role" yaml:"role"`
	Prompt PromptTemplate `json:"prompt" yaml:"prompt"`
}

var _ MessageFormatter = MessagePromptTemplate{}

// NewSystemMessagePromptTemplate creates a new system message prompt template.
func NewSystemMessagePromptTemplate(template string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:   llms.RoleSystem,
		Prompt: NewPromptTemplate(template, inputVariables),
	}
}

// NewHumanMessagePromptTemplate creates a new human message prompt template.
func NewHumanMessagePromptTemplate(template string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:   llms.RoleHuman,
		Prompt: NewPromptTemplate(template, inputVariables),
	}
}

// NewAIMessagePromptTemplate creates a new AI message prompt template.
func NewAIMessagePromptTemplate(template string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:   llms.RoleAI,
		Prompt: NewPromptTemplate(template, inputVariables),
	}
}

// FormatMessages formats the message with the values given.
func (p MessagePromptTemplate) FormatMessages(values map[string]any) ([]llms.Message, error) {
	text, err := p.Prompt.Format(values)
	if err != nil {
		return nil, err
	}
	return []llms.Message{llms.MessageFromTextParts(p.Role, text)}, nil
}

// GetInputVariables returns the input variables the prompt expects.
func (p MessagePromptTemplate) GetInputVariables() []string {
	return p.Prompt.GetInputVariables()
}

// ChatPromptTemplate is a prompt template for chat messages.
type ChatPromptTemplate struct {
	// Messages is the list of the messages to be formatted.
	Messages []MessageFormatter

	// PartialVariables represents a map of variable names to values or functions
	// that return values. If the value is a function, it will be called when the
	// prompt template is rendered.
	PartialVariables map[string]any
}

// NewChatPromptTemplate creates a new chat prompt template from a list of message formatters.
func NewChatPromptTemplate(messages []MessageFormatter) *ChatPromptTemplate {
	return &ChatPromptTemplate{
		Messages: messages,
	}
}

// ChatFromTemplate returns a chat prompt with a single human message,
// the input variables are discovered from the f-string template.
func ChatFromTemplate(template string) (*ChatPromptTemplate, error) {
	p, err := FromTemplate(template)
	if err != nil {
		return nil, err
	}
	return NewChatPromptTemplate([]MessageFormatter{
		MessagePromptTemplate{Role: llms.RoleHuman, Prompt: p},
	}), nil
}

// FormatPrompt formats the messages into a chat prompt value.
func (p *ChatPromptTemplate) FormatPrompt(values map[string]any) (llms.PromptValue, error) {
	messages, err := p.FormatMessages(values)
	if err != nil {
		return nil, err
	}
	return ChatPromptValue(messages), nil
}

// Format formats the messages with values given and returns the messages as a string.
func (p *ChatPromptTemplate) Format(values map[string]any) (string, error) {
	promptValue, err := p.FormatPrompt(values)
	if err != nil {
		return "", err
	}
	return promptValue.String(), nil
}

// FormatMessages formats the messages with the values and returns the formatted messages.
func (p *ChatPromptTemplate) FormatMessages(values map[string]any) ([]llms.Message, error) {
	resolvedValues, err := resolvePartialValues(p.PartialVariables, values)
	if err != nil {
		return nil, err
	}

	formattedMessages := make([]llms.Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		curFormattedMessages, err := m.FormatMessages(resolvedValues)
		if err != nil {
			return nil, err
		}
		formattedMessages = append(formattedMessages, curFormattedMessages...)
	}
	return formattedMessages, nil
}

// GetInputVariables returns the sorted input variables of all messages.
func (p *ChatPromptTemplate) GetInputVariables() []string {
	var vars []string
	for _, m := range p.Messages {
		for _, v := range m.GetInputVariables() {
			if !slices.Contains(vars, v) {
				vars = append(vars, v)
			}
		}
	}
	slices.Sort(vars)
	return vars
}

// Template returns the raw templates of the messages,
// one per line for multi-message prompts.
func (p *ChatPromptTemplate) Template() string {
	var parts []string
	for _, m := range p.Messages {
		if mt, ok := m.(MessagePromptTemplate); ok {
			if len(p.Messages) == 1 {
				return mt.Prompt.Template
			}
			parts = append(parts, string(mt.Role)+": "+mt.Prompt.Template)
		}
	}
	return strings.Join(parts, "\n")
}
