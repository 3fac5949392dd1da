package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

// SetupRedis starts an in-process Redis server for the duration of the test.
// It returns a store URL pointing at database 0 and the server, whose clock
// tests advance with FastForward.
func SetupRedis(t *testing.T) (string, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	return "redis://" + mr.Addr() + "/0", mr
}

// WriteConfig writes a settle.yaml with the given contents into a temporary
// directory and returns its absolute path.
// It fails the test immediately on error.
func WriteConfig(t *testing.T, contents string) string {
	t.Helper()

	absPath, err := filepath.Abs(filepath.Join(t.TempDir(), "settle.yaml"))
	require.NoError(t, err, "Failed to get absolute path for config file")
	require.NoError(t, os.WriteFile(absPath, []byte(contents), 0o600), "Failed to write config file")

	return absPath
}
