package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	done, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	require.NoError(t, err)
	require.Empty(t, done)
}

func TestLoadSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	require.NoError(t, os.WriteFile(path, []byte("1001\n\n1002\n  \n1003"), 0o644))

	done, err := Load(path)
	require.NoError(t, err)
	require.Len(t, done, 3)
	require.Contains(t, done, "1002")
}

func TestAppendFirstWriteHasNoLeadingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	require.NoError(t, Append(path, []string{"1001", "1002"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "1001\n1002", string(raw))
}

func TestAppendPreservesPriorIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	require.NoError(t, Append(path, []string{"1001"}))
	require.NoError(t, Append(path, []string{"1002", "1003"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "1001\n1002\n1003", string(raw))

	done, err := Load(path)
	require.NoError(t, err)
	require.Len(t, done, 3)
}

func TestAppendNothingLeavesFileAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	require.NoError(t, Append(path, nil))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
