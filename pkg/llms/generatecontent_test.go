package llms_test

import (
	"testing"

	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/stretchr/testify/assert"
)

func TestTextParts(t *testing.T) {
	t.Parallel()
	type args struct {
		role  llms.Role
		parts []string
	}
	tests := []struct {
		name    string
		args    args
		want    llms.Message
		content string
	}{
		{
			"basics",
			args{
				llms.RoleHuman,
				[]string{"a", "b", "c"},
			},
			llms.Message{
				Role:  llms.RoleHuman,
				Parts: []llms.ContentPart{llms.TextPart("a"), llms.TextPart("b"), llms.TextPart("c")},
			},
			"a\nb\nc",
		},
		{
			"empty",
			args{llms.RoleSystem, nil},
			llms.Message{Role: llms.RoleSystem, Parts: []llms.ContentPart{}},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mc := llms.MessageFromTextParts(tt.args.role, tt.args.parts...)
			assert.Equal(t, tt.want, mc)
			assert.Equal(t, tt.content, mc.GetContent())
		})
	}
}

func TestSplitSystem(t *testing.T) {
	t.Parallel()

	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "be brief"),
		llms.MessageFromTextParts(llms.RoleHuman, "Why is the sky blue?"),
		llms.MessageFromTextParts(llms.RoleSystem, "be kind"),
	}
	system, rest := llms.SplitSystem(msgs)
	assert.Equal(t, "be brief\nbe kind", system)
	assert.Len(t, rest, 1)
	assert.Equal(t, llms.RoleHuman, rest[0].Role)
}

func TestContentResponse_Text(t *testing.T) {
	t.Parallel()

	var resp *llms.ContentResponse
	assert.Empty(t, resp.Text())
	assert.Empty(t, (&llms.ContentResponse{}).Text())

	resp = &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "blue"}, {Content: "red"}}}
	assert.Equal(t, "blue", resp.Text())
}
