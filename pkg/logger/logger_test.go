package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_RoutesByLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	log := New(Config{Level: "debug", Service: "btumor-intake", Stdout: &stdout, Stderr: &stderr, JSON: true})

	log.Info().Msg("session created")
	log.Error().Msg("save failed")

	assert.Contains(t, stdout.String(), "session created")
	assert.NotContains(t, stdout.String(), "save failed")
	assert.Contains(t, stderr.String(), "save failed")
	assert.NotContains(t, stderr.String(), "session created")
	assert.Contains(t, stdout.String(), `"service":"btumor-intake"`)
}

func TestNew_RespectsLevel(t *testing.T) {
	var stdout bytes.Buffer
	log := New(Config{Level: "warn", Stdout: &stdout, Stderr: &bytes.Buffer{}, JSON: true})

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}
