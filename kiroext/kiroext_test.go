package kiroext

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommands_Shapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"wrapped", `{"commands":[{"name":"/help","description":"Show help"},{"name":"/model"}]}`},
		{"acp style", `{"availableCommands":[{"name":"/help","description":"Show help"},{"name":"/model"}]}`},
		{"bare array", ` [{"name":"/help","description":"Show help"},{"name":"/model"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, err := ParseCommands(json.RawMessage(tt.raw))
			require.NoError(t, err)
			require.Len(t, cmds, 2)
			assert.Equal(t, "/help", cmds[0].Name)
			assert.Equal(t, "Show help", cmds[0].Description)
			assert.Equal(t, "/model", cmds[1].Name)
			assert.Empty(t, cmds[1].Description)
		})
	}
}

func TestParseCommands_Unrecognized(t *testing.T) {
	for _, raw := range []string{``, `{}`, `{"other":[]}`} {
		_, err := ParseCommands(json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrUnrecognizedPayload, "payload %q", raw)
	}

	_, err := ParseCommands(json.RawMessage(`{"commands": 5}`))
	assert.Error(t, err)
}

func TestParseCommands_Meta(t *testing.T) {
	raw := `{"commands":[
		{"name":"/model","meta":{"inputType":"selection","optionsMethod":"_kiro.dev/commands/model/options"}},
		{"name":"/quit","meta":{"local":true}},
		{"name":"/context","meta":{"inputType":"panel"}},
		{"name":"/compact","input_hint":"instructions"}
	]}`

	cmds, err := ParseCommands(json.RawMessage(raw))
	require.NoError(t, err)
	require.Len(t, cmds, 4)

	require.NotNil(t, cmds[0].Meta)
	assert.Equal(t, "selection", cmds[0].Meta.InputType)
	assert.Equal(t, "_kiro.dev/commands/model/options", cmds[0].Meta.OptionsMethod)
	assert.Equal(t, "instructions", cmds[3].InputHint)

	assert.False(t, cmds[0].IsExecutable(), "selection")
	assert.False(t, cmds[1].IsExecutable(), "local")
	assert.True(t, cmds[2].IsExecutable(), "panel")
	assert.True(t, cmds[3].IsExecutable(), "no meta")
}

func TestCommand_CamelCaseHint(t *testing.T) {
	var c Command
	require.NoError(t, json.Unmarshal([]byte(`{"name":"/x","inputHint":"text"}`), &c))
	assert.Equal(t, "text", c.InputHint)
}

func TestParseMetadata(t *testing.T) {
	md, err := ParseMetadata(json.RawMessage(`{"sessionId":"s-1","contextUsagePercentage":42.5}`))
	require.NoError(t, err)
	assert.Equal(t, "s-1", md.SessionID)
	assert.InDelta(t, 42.5, md.ContextUsagePercentage, 1e-9)

	_, err = ParseMetadata(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestMethods(t *testing.T) {
	assert.Equal(t, MethodMetadata, NormalizeMethod("_kiro.dev/metadata"))
	assert.Equal(t, MethodMetadata, NormalizeMethod("kiro.dev/metadata"))
	assert.True(t, IsExtension("_kiro.dev/commands/available"))
	assert.True(t, IsExtension("kiro.dev/anything"))
	assert.False(t, IsExtension("session/update"))
}
