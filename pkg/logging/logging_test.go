package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	defer Init(Config{})

	Info().Str("id", "42").Msg("resolve")

	out := buf.String()
	assert.Contains(t, out, `"id":"42"`)
	assert.Contains(t, out, `"message":"resolve"`)
}

func TestCtxCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})
	defer Init(Config{})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	require.Equal(t, "req-1", RequestIDFrom(ctx))

	Ctx(ctx).Warn().Msg("skipped")
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
}

func TestSetLoggerReplacesGlobal(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer Init(Config{})

	Error().Str("op", "get").Msg("cache read failed")
	assert.Contains(t, buf.String(), `"op":"get"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"WARN", "warn"},
		{"warning", "warn"},
		{"", "info"},
		{"bogus", "info"},
		{"disabled", "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in).String())
		})
	}
}
