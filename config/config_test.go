package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MODEL_PATH", "/models/best_mri_model.weights")

	cfg, err := FromViper(newViper())
	require.NoError(t, err)
	require.Equal(t, "/models/best_mri_model.weights", cfg.ModelPath)
	require.Equal(t, EngineNative, cfg.Engine)
	require.Equal(t, 8000, cfg.Port)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout)
	require.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	require.Equal(t, []string{"*"}, cfg.CORSOrigins)
	require.Equal(t, 256, cfg.CacheSize)
	require.Equal(t, 10*time.Minute, cfg.CacheTTL)
	require.Equal(t, "mri_requests", cfg.AMQPQueue)
	require.Empty(t, cfg.HistoryPath)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MODEL_PATH", "m.weights")
	t.Setenv("PORT", "9090")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("CACHE_SIZE", "0")

	cfg, err := FromViper(newViper())
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
	require.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	require.Zero(t, cfg.CacheSize)
}

func TestLoad_RequiresModelPath(t *testing.T) {
	t.Setenv("MODEL_PATH", "")

	_, err := FromViper(newViper())
	require.ErrorContains(t, err, "MODEL_PATH is required")
}

func TestLoad_ONNXEngine(t *testing.T) {
	t.Setenv("MODEL_PATH", "")
	t.Setenv("ENGINE", "ONNX")

	_, err := FromViper(newViper())
	require.ErrorContains(t, err, "ONNX_MODEL_PATH")

	t.Setenv("ONNX_MODEL_PATH", "model.onnx")
	cfg, err := FromViper(newViper())
	require.NoError(t, err)
	require.Equal(t, EngineONNX, cfg.Engine)
}

func TestLoad_UnknownEngine(t *testing.T) {
	t.Setenv("MODEL_PATH", "m")
	t.Setenv("ENGINE", "tpu")

	_, err := FromViper(newViper())
	require.ErrorContains(t, err, "unknown ENGINE")
}
