package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHistoryManager_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	at := time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC)

	hm := NewHistoryManager(path)
	require.NoError(t, hm.Load())
	th := hm.GetTaskHistory("reports")
	th.Add("ftp://host/pub/a.csv", "a.csv", at)
	th.Add("ftp://host/pub/sub/b.csv", "sub/b.csv", at.Add(time.Hour))
	hm.GetTaskHistory("empty")
	require.NoError(t, hm.Save())

	loaded := NewHistoryManager(path)
	require.NoError(t, loaded.Load())
	reports := loaded.GetTaskHistory("reports")
	require.Equal(t, 2, reports.Len())
	rec, ok := reports.Get("ftp://host/pub/sub/b.csv")
	require.True(t, ok)
	require.Equal(t, "sub/b.csv", rec.Path)
	require.True(t, at.Add(time.Hour).Equal(rec.TransferredAt))
	require.Zero(t, loaded.GetTaskHistory("empty").Len())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestHistoryManager_LoadMissing(t *testing.T) {
	hm := NewHistoryManager(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, hm.Load())
	require.Zero(t, hm.GetTaskHistory("x").Len())
}

func TestHistoryManager_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	require.Error(t, NewHistoryManager(path).Load())
}

func TestTaskHistory(t *testing.T) {
	th := newTaskHistory()
	require.False(t, th.Has("ftp://host/a"))

	th.Add("ftp://host/a", "a", time.Now())
	require.True(t, th.Has("ftp://host/a"))

	snap := th.Snapshot()
	th.Remove("ftp://host/a")
	require.False(t, th.Has("ftp://host/a"))
	require.Len(t, snap, 1)
}

func TestHistoryManager_ConcurrentSave(t *testing.T) {
	hm := NewHistoryManager(filepath.Join(t.TempDir(), "history.json"))
	th := hm.GetTaskHistory("t")

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 25 {
				th.Add(fmt.Sprintf("ftp://host/%d/%d", i, j), "x", time.Now())
				if err := hm.Save(); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 100, th.Len())
}
