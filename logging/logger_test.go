package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", "text", &buf)

	logger.Info("starting", "github_token", "ghp_supersecret", "slack_signing_secret", "abcdef", "channel", "C123")

	out := buf.String()
	assert.NotContains(t, out, "ghp_supersecret")
	assert.NotContains(t, out, "abcdef")
	assert.Contains(t, out, "github_token=***")
	assert.Contains(t, out, "channel=C123")
}

func TestNew_KeepsShapeMetadataInGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", "json", &buf)

	logger.Debug("credential shape", slog.Group("bot_token", "length", 57, "prefix_ok", true))

	out := buf.String()
	assert.Contains(t, out, `"length":57`)
	assert.Contains(t, out, `"prefix_ok":true`)
}

func TestNew_Level(t *testing.T) {
	testCases := []struct {
		level   string
		debugOn bool
		infoOn  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"unknown", false, true},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(tc.level, "text", &buf)

			logger.Debug("debug message")
			logger.Info("info message")

			assert.Equal(t, tc.debugOn, strings.Contains(buf.String(), "debug message"))
			assert.Equal(t, tc.infoOn, strings.Contains(buf.String(), "info message"))
		})
	}
}

func TestIsSensitiveKey(t *testing.T) {
	assert.True(t, IsSensitiveKey("SLACK_BOT_TOKEN"))
	assert.True(t, IsSensitiveKey("Authorization"))
	assert.True(t, IsSensitiveKey("signing_secret"))
	assert.False(t, IsSensitiveKey("repository"))
	assert.False(t, IsSensitiveKey("actor"))
}
