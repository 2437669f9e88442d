package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gateway/multiapi/relay/channeltype"
)

func TestListEnabledProvidersForModel(t *testing.T) {
	setupTestDB(t)

	enabled := &Provider{
		Name:    "primary-openai",
		Family:  channeltype.OpenAICompatible,
		BaseURL: "https://api.openai.com",
		Models:  "gpt-4o, gpt-4o-mini",
		Status:  ProviderStatusEnabled,
	}
	require.NoError(t, DB.Create(enabled).Error)

	disabled := &Provider{
		Name:    "backup-openai",
		Family:  channeltype.OpenAICompatible,
		BaseURL: "https://api.openai.com",
		Models:  "gpt-4o",
		Status:  ProviderStatusDisabled,
	}
	require.NoError(t, DB.Create(disabled).Error)

	providers, err := ListEnabledProvidersForModel("gpt-4o")
	require.NoError(t, err)
	require.Len(t, providers, 1)
	require.Equal(t, enabled.Id, providers[0].Id)

	providers, err = ListEnabledProvidersForModel("gpt-4o-mini")
	require.NoError(t, err)
	require.Len(t, providers, 1)

	providers, err = ListEnabledProvidersForModel("claude-sonnet-4-5")
	require.NoError(t, err)
	require.Empty(t, providers)
}

func TestUpdateProviderStatus(t *testing.T) {
	setupTestDB(t)

	p := &Provider{Name: "test", Family: channeltype.Gemini, BaseURL: "https://x", Models: "gemini-2.5-flash", Status: ProviderStatusEnabled}
	require.NoError(t, DB.Create(p).Error)

	require.NoError(t, UpdateProviderStatus(p.Id, ProviderStatusAutoDisabled))

	reloaded, err := GetProviderById(p.Id)
	require.NoError(t, err)
	require.Equal(t, ProviderStatusAutoDisabled, reloaded.Status)
}
