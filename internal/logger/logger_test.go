package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterTagsService(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "twiller-test", false)

	l.Info().Str("email", "a@example.com").Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "twiller-test", line["service"])
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "a@example.com", line["email"])
	assert.Contains(t, line, "time")
}

func TestDebugLevelToggle(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "svc", false)
	l.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	l = NewWithWriter(&buf, "svc", true)
	l.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestStackIsAttachedToErrors(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "svc", false)

	l.Error().Stack().Err(errors.New("boom")).Msg("failed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "boom", line["error"])
	assert.Contains(t, line, "stack")
}
