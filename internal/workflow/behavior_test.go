package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadAndClearMissingFileDefaultsToContinue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "behavior.json")

	b, err := ReadAndClear(path)
	require.NoError(t, err)
	require.Equal(t, ActionContinue, b.Action)
}

func TestReadAndClearDeletesFileAfterReading(t *testing.T) {
	path := filepath.Join(t.TempDir(), "behavior.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"action":"stop","reason":"done"}`), 0o644))

	b, err := ReadAndClear(path)
	require.NoError(t, err)
	require.Equal(t, ActionStop, b.Action)
	require.Equal(t, "done", b.Reason)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestReadAndClearTriggerRequiresAgentID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "behavior.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"action":"trigger","reason":"needs review"}`), 0o644))

	_, err := ReadAndClear(path)
	require.ErrorIs(t, err, ErrMissingTriggerAgent)
}

func TestReadAndClearLoopDefaultsTargetToStepZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "behavior.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"action":"loop","reason":"retry"}`), 0o644))

	b, err := ReadAndClear(path)
	require.NoError(t, err)
	require.Equal(t, ActionLoop, b.Action)
	require.Nil(t, b.TargetStepIndex)
}
