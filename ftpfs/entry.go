package ftpfs

import (
	"fmt"
	"net/url"
	"path"
	"time"
)

// Kind discriminates the two entry variants.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	}
	return "unknown"
}

// Entry is a file or directory on an FTP server. The set of implementations
// is closed: *FileEntry and *DirectoryEntry. Callers switch on Kind or on the
// concrete type.
//
// Entries are immutable snapshots; a changed remote file has to be fetched
// again.
type Entry interface {
	URI() *url.URL
	Kind() Kind
	Name() string
	FullName() string

	entry()
}

type base struct {
	uri  *url.URL
	kind Kind
}

func newBase(name, raw string, kind Kind) (base, error) {
	u, err := parseNormalized(name, raw)
	if err != nil {
		return base{}, err
	}
	return base{uri: u, kind: kind}, nil
}

// URI returns a copy of the entry's normalized URI.
func (b base) URI() *url.URL {
	u := *b.uri
	return &u
}

func (b base) Kind() Kind {
	return b.kind
}

// Name returns the last path segment. It is empty for the server root.
func (b base) Name() string {
	if isRoot(b.uri) {
		return ""
	}
	return path.Base(b.uri.Path)
}

// FullName returns the absolute URI string.
func (b base) FullName() string {
	return b.uri.String()
}

func (base) entry() {}

// FileEntry describes a remote file.
type FileEntry struct {
	base
	lastWriteTime time.Time
	length        int64
}

// NewFileEntry builds a file entry. It fails with ErrInvalidArgument when uri
// is not an FTP URI and with ErrOutOfRange when length is negative.
func NewFileEntry(uri string, lastWriteTime time.Time, length int64) (*FileEntry, error) {
	b, err := newBase("file", uri, KindFile)
	if err != nil {
		return nil, err
	}
	return newFileEntry(b.uri, lastWriteTime, length)
}

func newFileEntry(u *url.URL, lastWriteTime time.Time, length int64) (*FileEntry, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: file length %d", ErrOutOfRange, length)
	}
	return &FileEntry{
		base:          base{uri: u, kind: KindFile},
		lastWriteTime: lastWriteTime,
		length:        length,
	}, nil
}

func (f *FileEntry) LastWriteTime() time.Time {
	return f.lastWriteTime
}

// Length is the size in bytes reported by the server.
func (f *FileEntry) Length() int64 {
	return f.length
}

// DirectoryEntry describes a remote directory.
type DirectoryEntry struct {
	base
}

// NewDirectoryEntry builds a directory entry. It fails with
// ErrInvalidArgument when uri is not an FTP URI.
func NewDirectoryEntry(uri string) (*DirectoryEntry, error) {
	b, err := newBase("directory", uri, KindDirectory)
	if err != nil {
		return nil, err
	}
	return &DirectoryEntry{base: b}, nil
}

func newDirectoryEntry(u *url.URL) *DirectoryEntry {
	return &DirectoryEntry{base: base{uri: u, kind: KindDirectory}}
}

var (
	_ Entry = (*FileEntry)(nil)
	_ Entry = (*DirectoryEntry)(nil)
)
