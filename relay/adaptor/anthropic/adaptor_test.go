package anthropic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gateway/multiapi/relay/meta"
	"github.com/gateway/multiapi/relay/model"
)

func TestGetRequestURL(t *testing.T) {
	a := &Adaptor{}
	m := &meta.Meta{BaseURL: "https://api.anthropic.com"}
	a.Init(m)

	url, err := a.GetRequestURL(m)
	require.NoError(t, err)
	require.Equal(t, "https://api.anthropic.com/v1/messages", url)
}

func TestConvertRequestExtractsSystemMessage(t *testing.T) {
	a := &Adaptor{}
	m := &meta.Meta{ActualModelName: "claude-sonnet-4-5"}
	a.Init(m)

	req := &model.GeneralOpenAIRequest{
		Messages: []model.Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
		},
	}

	out, err := a.ConvertRequest(nil, 0, req)
	require.NoError(t, err)

	claude, ok := out.(*model.ClaudeRequest)
	require.True(t, ok)
	require.Equal(t, "be terse", claude.System)
	require.Len(t, claude.Messages, 1)
	require.Equal(t, "claude-sonnet-4-5", claude.Model)
	require.Equal(t, 4096, claude.MaxTokens)
}

func TestConvertClaudeRequestDefaultsMaxTokens(t *testing.T) {
	a := &Adaptor{}
	m := &meta.Meta{ActualModelName: "claude-haiku-4-5"}
	a.Init(m)

	out, err := a.ConvertClaudeRequest(nil, &model.ClaudeRequest{})
	require.NoError(t, err)
	require.Equal(t, 4096, out.(*model.ClaudeRequest).MaxTokens)
}
