package protocols

import (
	"io"
	"path"
	"time"
)

// SinkInfo describes a file or directory stored in a Sink.
type SinkInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
	Path    string // relative to the sink root
}

// Sink is the destination of mirrored FTP files. Paths are slash-separated
// and relative to the sink root; they can never address anything above it.
type Sink interface {
	Init() error
	Close() error
	MkdirAll(path string) error
	// Create truncates or creates the file. The caller must close the writer.
	Create(path string) (io.WriteCloser, error)
	Stat(path string) (*SinkInfo, error)
	Remove(path string) error
}

// cleanRel turns rel into a rooted, cleaned slash path so that ".." segments
// cannot climb above the sink root.
func cleanRel(rel string) string {
	return path.Clean("/" + rel)
}
