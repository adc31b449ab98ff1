package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/logging"
)

func TestNew_WritesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := logging.New(logging.Config{
		Service: "lifelink-api",
		Version: "1.2.3",
		Level:   "info",
		Output:  &buf,
	})
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug().Msg("hidden")
	logger.Info().Str("user_id", "usr_1").Msg("visible")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "lifelink-api", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "usr_1", entry["user_id"])
	assert.Equal(t, "visible", entry["message"])
}

func TestNew_WritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	logger, closer, err := logging.New(logging.Config{
		Service: "lifelink-worker",
		Dir:     dir,
		Output:  &buf,
	})
	require.NoError(t, err)

	logger.Warn().Msg("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "lifelink-worker.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, logging.ParseLevel(in), in)
	}
}
