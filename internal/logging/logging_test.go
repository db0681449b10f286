package logging

import (
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreStdLogger(t *testing.T) {
	t.Helper()
	writer, flags, prefix := log.Writer(), log.Flags(), log.Prefix()
	previous := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(previous)
		log.SetOutput(writer)
		log.SetFlags(flags)
		log.SetPrefix(prefix)
	})
}

func TestSetupWritesJSONToRotatedFile(t *testing.T) {
	restoreStdLogger(t)
	path := filepath.Join(t.TempDir(), "payments.log")

	logger, closer := Setup("stayescrow", "test", path)
	log.Printf("[Settlement] booking %d settled", 42)
	logger.Warn("balance low", "booking", 7)
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "[Settlement] booking 42 settled", first["message"])
	assert.Equal(t, "INFO", first["severity"])
	assert.Equal(t, "stayescrow", first["service"])
	assert.Equal(t, "test", first["env"])
	assert.Contains(t, first, "timestamp")

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "WARN", second["severity"])
	assert.Equal(t, float64(7), second["booking"])
}

func TestSetupWithoutFileHasNoopCloser(t *testing.T) {
	restoreStdLogger(t)
	_, closer := Setup("stayescrow", "", "")
	assert.NoError(t, closer.Close())
}
