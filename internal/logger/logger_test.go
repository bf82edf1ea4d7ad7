package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogConfig struct {
	level, output, file string
}

func (c testLogConfig) GetLevel() string  { return c.level }
func (c testLogConfig) GetOutput() string { return c.output }
func (c testLogConfig) GetFile() string   { return c.file }

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLogLevel("DEBUG"))
	assert.Equal(t, WARN, ParseLogLevel("warning"))
	assert.Equal(t, INFO, ParseLogLevel("nonsense"))
}

func TestInitFileOutput(t *testing.T) {
	prev := defaultLogger
	defer func() { defaultLogger = prev }()

	file := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Init(testLogConfig{level: "info", output: "file", file: file}))

	Info("escrow %s claimed", "0xabc")
	Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "escrow 0xabc claimed")
}
