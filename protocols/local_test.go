package protocols

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSink(t *testing.T, s Sink, rel, data string) {
	t.Helper()
	w, err := s.Create(rel)
	require.NoError(t, err)
	_, err = io.WriteString(w, data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestLocalSink(t *testing.T) {
	root := filepath.Join(t.TempDir(), "mirror")
	s := &LocalSink{Root: root}
	require.NoError(t, s.Init())
	defer s.Close()

	require.NoError(t, s.MkdirAll("pub/archive"))
	writeSink(t, s, "pub/archive/report.txt", "quarterly numbers")

	info, err := s.Stat("pub/archive/report.txt")
	require.NoError(t, err)
	require.Equal(t, "report.txt", info.Name)
	require.Equal(t, int64(17), info.Size)
	require.False(t, info.IsDir)
	require.Equal(t, "pub/archive/report.txt", info.Path)

	data, err := os.ReadFile(filepath.Join(root, "pub", "archive", "report.txt"))
	require.NoError(t, err)
	require.Equal(t, "quarterly numbers", string(data))

	require.NoError(t, s.Remove("pub/archive/report.txt"))
	_, err = s.Stat("pub/archive/report.txt")
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLocalSink_StaysBelowRoot(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "mirror")
	s := &LocalSink{Root: root}
	require.NoError(t, s.Init())

	writeSink(t, s, "../../escape.txt", "x")

	_, err := os.Stat(filepath.Join(dir, "escape.txt"))
	require.True(t, errors.Is(err, fs.ErrNotExist))
	info, err := s.Stat("escape.txt")
	require.NoError(t, err)
	require.Equal(t, "escape.txt", info.Path)
}
