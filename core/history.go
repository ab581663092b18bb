package core

import (
	"encoding/json"
	"errors"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record remembers where a source file was mirrored to and when.
type Record struct {
	Path          string    `json:"path"` // relative to the sink root
	TransferredAt time.Time `json:"transferred_at"`
}

// TaskHistory maps normalized source URIs to their transfer record.
type TaskHistory struct {
	mu      sync.RWMutex
	records map[string]Record
}

func newTaskHistory() *TaskHistory {
	return &TaskHistory{records: make(map[string]Record)}
}

func (th *TaskHistory) Add(uri, rel string, at time.Time) {
	th.mu.Lock()
	defer th.mu.Unlock()
	th.records[uri] = Record{Path: rel, TransferredAt: at}
}

func (th *TaskHistory) Has(uri string) bool {
	th.mu.RLock()
	defer th.mu.RUnlock()
	_, ok := th.records[uri]
	return ok
}

func (th *TaskHistory) Get(uri string) (Record, bool) {
	th.mu.RLock()
	defer th.mu.RUnlock()
	r, ok := th.records[uri]
	return r, ok
}

func (th *TaskHistory) Remove(uri string) {
	th.mu.Lock()
	defer th.mu.Unlock()
	delete(th.records, uri)
}

// Snapshot returns a copy of all records.
func (th *TaskHistory) Snapshot() map[string]Record {
	th.mu.RLock()
	defer th.mu.RUnlock()
	return maps.Clone(th.records)
}

func (th *TaskHistory) Len() int {
	th.mu.RLock()
	defer th.mu.RUnlock()
	return len(th.records)
}

func (th *TaskHistory) MarshalJSON() ([]byte, error) {
	th.mu.RLock()
	defer th.mu.RUnlock()
	return json.Marshal(struct {
		Records map[string]Record `json:"records"`
	}{th.records})
}

func (th *TaskHistory) UnmarshalJSON(data []byte) error {
	var v struct {
		Records map[string]Record `json:"records"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Records == nil {
		v.Records = make(map[string]Record)
	}
	th.mu.Lock()
	defer th.mu.Unlock()
	th.records = v.Records
	return nil
}

// HistoryManager keeps the transfer history of every task and persists it
// as a JSON file.
type HistoryManager struct {
	path  string
	mu    sync.Mutex
	tasks map[string]*TaskHistory
}

func NewHistoryManager(path string) *HistoryManager {
	return &HistoryManager{
		path:  path,
		tasks: make(map[string]*TaskHistory),
	}
}

// Load replaces the in-memory history with the file contents. A missing file
// is not an error.
func (hm *HistoryManager) Load() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	data, err := os.ReadFile(hm.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	tasks := make(map[string]*TaskHistory)
	if err := json.Unmarshal(data, &tasks); err != nil {
		return err
	}
	for name, th := range tasks {
		if th == nil {
			tasks[name] = newTaskHistory()
		}
	}
	hm.tasks = tasks
	return nil
}

// Save writes the history through a temporary file so a crash never leaves
// a truncated file behind.
func (hm *HistoryManager) Save() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	data, err := json.MarshalIndent(hm.tasks, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(hm.path), filepath.Base(hm.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), hm.path)
}

func (hm *HistoryManager) GetTaskHistory(taskName string) *TaskHistory {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	th, ok := hm.tasks[taskName]
	if !ok {
		th = newTaskHistory()
		hm.tasks[taskName] = th
	}
	return th
}
