package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	err := New(ErrCodeNotIndexed, "project is not indexed", nil).
		WithSuggestion("run 'codecontext index' first")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: project is not indexed")
	assert.Contains(t, out, "Hint: run 'codecontext index' first")
	assert.Contains(t, out, "ERR_405_NOT_INDEXED (not_indexed)")
}

func TestFormatForCLI_PlainError(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))
	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON_MachineReadableKind(t *testing.T) {
	// Given: a configuration error with a cause
	err := New(ErrCodePathNotFound, "path does not exist", errors.New("stat: no such file")).
		WithDetail("path", "/nope")

	// When: formatting as JSON
	data, ferr := FormatJSON(err)
	require.NoError(t, ferr)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	// Then: code and kind are present
	assert.Equal(t, ErrCodePathNotFound, got["code"])
	assert.Equal(t, "configuration", got["kind"])
	assert.Equal(t, "stat: no such file", got["cause"])
	assert.Equal(t, false, got["retryable"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(New(ErrCodeProviderTimeout, "timeout", nil))

	keys := make(map[string]string)
	for _, a := range attrs {
		keys[a.Key] = a.Value.String()
	}
	assert.Equal(t, ErrCodeProviderTimeout, keys["error_code"])
	assert.Equal(t, "provider_transient", keys["error_kind"])
	assert.Nil(t, LogAttrs(nil))
}
