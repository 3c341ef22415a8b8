package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/duffel/internal/config"
)

func quietStore(t *testing.T) *config.Store {
	t.Helper()
	discard := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return config.NewStore(filepath.Join(t.TempDir(), "config.json"), discard)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "WARN", want: slog.LevelWarn},
		{in: "Error", want: slog.LevelError},
		{in: "", want: slog.LevelInfo},
		{in: "verbose", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run("level "+tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseLevel(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuilderWritesJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	b := newBuilder(config.LogConfig{Level: "info"}, &buf)

	b.Logger().Info("Server ready", "port", 5984)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Server ready", lines[0]["msg"])
	assert.EqualValues(t, 5984, lines[0]["port"])
}

func TestAttachRegistersStaticDefaults(t *testing.T) {
	t.Parallel()

	b := newBuilder(config.LogConfig{Level: "warn", File: "/var/log/duffel.log"}, io.Discard)
	st := quietStore(t)
	b.Attach(st)

	assert.Equal(t, "warn", st.GetString("log", "level"))
	assert.Equal(t, "/var/log/duffel.log", st.GetString("log", "file"))
}

func TestRebuildBeforeAttachFails(t *testing.T) {
	t.Parallel()

	b := newBuilder(config.LogConfig{Level: "info"}, io.Discard)
	assert.Error(t, b.Rebuild())
}

func TestRebuildChangesLevelLive(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	b := newBuilder(config.LogConfig{Level: "info"}, &buf)
	st := quietStore(t)
	b.Attach(st)

	lg := b.Logger()
	lg.Debug("hidden")
	require.Empty(t, buf.String())

	_, err := st.Set("log", "level", "debug")
	require.NoError(t, err)
	require.NoError(t, b.Rebuild())

	lg.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestRebuildRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	b := newBuilder(config.LogConfig{Level: "info"}, &buf)
	st := quietStore(t)
	b.Attach(st)

	_, err := st.Set("log", "level", "loud")
	require.NoError(t, err)
	assert.Error(t, b.Rebuild())

	// The previous sink set keeps serving.
	b.Logger().Info("still here")
	assert.Contains(t, buf.String(), "still here")
}

func TestFileSinkFanout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "duffel.log")
	b := newBuilder(config.LogConfig{Level: "info"}, &buf)
	st := quietStore(t)
	b.Attach(st)

	_, err := st.Set("log", "file", path)
	require.NoError(t, err)
	require.NoError(t, b.Rebuild())

	b.Logger().Info("to both sinks")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both sinks")
	assert.Contains(t, buf.String(), "to both sinks")

	// Dropping the file key sends new records to stdout only.
	_, err = st.Delete("log", "file")
	require.NoError(t, err)
	require.NoError(t, b.Rebuild())

	b.Logger().Info("stdout only")

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stdout only")
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
	assert.Contains(t, buf.String(), "stdout only")
}

func TestKeys(t *testing.T) {
	t.Parallel()

	b := newBuilder(config.LogConfig{Level: "info"}, io.Discard)
	assert.Equal(t, []string{"log.level", "log.file"}, b.Keys())
}
