package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewWithOutput_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loan_app.log")

	zl := NewWithOutput("info", "json", []string{path})
	log := NewZapAdapter(zl)
	log.WithFields(map[string]interface{}{"component": "test"}).Info("prediction served", map[string]interface{}{
		"probability": 72.5,
	})
	log.Debug("not written at info level", nil)
	_ = zl.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "prediction served")
	assert.Contains(t, string(data), `"component":"test"`)
	assert.NotContains(t, string(data), "not written")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("anything"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("fatal"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
}

func TestToZapFields_SortedWithErrors(t *testing.T) {
	fields := toZapFields(map[string]interface{}{
		"variant": "random_forest",
		"cause":   assert.AnError,
		"attempt": 2,
	})
	require.Len(t, fields, 3)
	assert.Equal(t, "attempt", fields[0].Key)
	assert.Equal(t, "cause", fields[1].Key)
	assert.Equal(t, zapcore.ErrorType, fields[1].Type)
	assert.Equal(t, "variant", fields[2].Key)

	assert.Nil(t, toZapFields(nil))
}

func TestTestAndNoOpLoggers(t *testing.T) {
	NewTestLogger(t).WithError(assert.AnError).Warn("warned", nil)
	NewNoOpLogger().With(map[string]interface{}{"a": 1}).Error("dropped", nil)
}
