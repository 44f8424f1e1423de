package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitFileOutput(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	path := filepath.Join(t.TempDir(), "reader.log")
	require.NoError(t, Init(Config{
		Level:    "debug",
		Output:   "file",
		FilePath: path,
		Format:   "json",
		MaxSize:  1,
	}))

	Named("reader").Info("range exhausted", zap.Int64("offset", 10))
	_ = Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"range exhausted"`)
	assert.Contains(t, string(data), `"logger":"reader"`)
}

func TestInitRejectsMissingFilePath(t *testing.T) {
	assert.Error(t, Init(Config{Output: "file"}))
	assert.Error(t, Init(Config{Output: "syslog"}))
}

func TestGetFallsBackToDefault(t *testing.T) {
	SetLogger(nil)
	assert.NotNil(t, Get())
	SetLogger(zap.NewNop())
	assert.NotNil(t, With(zap.String("k", "v")))
}
