package protocols

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalSink stores mirrored files below a local directory.
type LocalSink struct {
	Root string
}

func (l *LocalSink) Init() error {
	return os.MkdirAll(l.Root, 0o755)
}

func (l *LocalSink) Close() error {
	return nil
}

func (l *LocalSink) full(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(cleanRel(rel)))
}

func (l *LocalSink) MkdirAll(rel string) error {
	return os.MkdirAll(l.full(rel), 0o755)
}

func (l *LocalSink) Create(rel string) (io.WriteCloser, error) {
	return os.Create(l.full(rel))
}

func (l *LocalSink) Stat(rel string) (*SinkInfo, error) {
	info, err := os.Stat(l.full(rel))
	if err != nil {
		return nil, err
	}
	return &SinkInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
		Path:    strings.TrimPrefix(cleanRel(rel), "/"),
	}, nil
}

func (l *LocalSink) Remove(rel string) error {
	return os.Remove(l.full(rel))
}

var _ Sink = (*LocalSink)(nil)
