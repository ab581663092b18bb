// Package ftpfstest provides an in-memory ftpfs.Transport for tests.
package ftpfstest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"flagftp/ftpfs"
)

// ErrNotFound is the reply for paths that do not exist or have the wrong kind.
var ErrNotFound = &textproto.Error{Code: 550, Msg: "No such file or directory."}

type node struct {
	dir     bool
	data    []byte
	modTime time.Time
}

// Transport serves requests from an in-memory tree rooted at "/" and records
// every request it receives. Its listings use the Unix LIST format, including
// the "total" line and the "." and ".." entries real servers send.
type Transport struct {
	mu       sync.Mutex
	nodes    map[string]*node
	requests []ftpfs.Request
	failures map[ftpfs.Method]error
}

func New() *Transport {
	return &Transport{
		nodes:    map[string]*node{"/": {dir: true}},
		failures: map[ftpfs.Method]error{},
	}
}

// AddDir creates p and any missing parents.
func (t *Transport) AddDir(p string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mkdirAll(path.Clean("/" + p))
}

// AddFile stores a file, creating missing parent directories.
func (t *Transport) AddFile(p, data string, modTime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p = path.Clean("/" + p)
	t.mkdirAll(path.Dir(p))
	t.nodes[p] = &node{data: []byte(data), modTime: modTime}
}

// File returns the content of the file at p.
func (t *Transport) File(p string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[path.Clean("/"+p)]
	if !ok || n.dir {
		return "", false
	}
	return string(n.data), true
}

// Fail makes every later request with method m return err.
func (t *Transport) Fail(m ftpfs.Method, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.failures, m)
		return
	}
	t.failures[m] = err
}

// Requests returns a copy of the requests received so far.
func (t *Transport) Requests() []ftpfs.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ftpfs.Request(nil), t.requests...)
}

// Count returns how many requests used method m.
func (t *Transport) Count(m ftpfs.Method) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.requests {
		if r.Method == m {
			n++
		}
	}
	return n
}

func (t *Transport) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func (t *Transport) mkdirAll(p string) {
	for ; p != "/"; p = path.Dir(p) {
		if _, ok := t.nodes[p]; !ok {
			t.nodes[p] = &node{dir: true}
		}
	}
}

func (t *Transport) children(dir string) []string {
	var names []string
	for p := range t.nodes {
		if p != "/" && path.Dir(p) == dir {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)
	return names
}

func (t *Transport) render(dir string) string {
	var b strings.Builder
	b.WriteString("total 8\r\n")
	b.WriteString("drwxr-xr-x   4 user group    4096 Jan 15 10:30 .\r\n")
	b.WriteString("drwxr-xr-x   9 user group    4096 Jan 15 10:30 ..\r\n")
	for _, name := range t.children(dir) {
		n := t.nodes[path.Join(dir, name)]
		if n.dir {
			fmt.Fprintf(&b, "drwxr-xr-x   2 user group %7d Jan 15 10:30 %s\r\n", 4096, name)
		} else {
			fmt.Fprintf(&b, "-rw-r--r--   1 user group %7d Mar  3  2022 %s\r\n", len(n.data), name)
		}
	}
	return b.String()
}

func body(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func (t *Transport) Do(_ context.Context, req *ftpfs.Request) (*ftpfs.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, *req)
	if err := t.failures[req.Method]; err != nil {
		return nil, err
	}

	p := req.URI.Path
	n := t.nodes[p]
	isDir := n != nil && n.dir
	isFile := n != nil && !n.dir

	switch req.Method {
	case ftpfs.MethodListDetails:
		if !isDir {
			return nil, ErrNotFound
		}
		return &ftpfs.Response{Status: 226, Body: body(t.render(p))}, nil
	case ftpfs.MethodListNames:
		if !isDir {
			return nil, ErrNotFound
		}
		var lines []string
		for _, name := range t.children(p) {
			lines = append(lines, path.Join(p, name))
		}
		return &ftpfs.Response{Status: 226, Body: body(strings.Join(lines, "\r\n"))}, nil
	case ftpfs.MethodGetTimestamp:
		if !isFile {
			return nil, ErrNotFound
		}
		return &ftpfs.Response{Status: 213, LastModified: n.modTime}, nil
	case ftpfs.MethodGetSize:
		if !isFile {
			return nil, ErrNotFound
		}
		return &ftpfs.Response{Status: 213, ContentLength: int64(len(n.data))}, nil
	case ftpfs.MethodRetrieve:
		if !isFile {
			return nil, ErrNotFound
		}
		return &ftpfs.Response{Status: 150, Body: body(string(n.data))}, nil
	case ftpfs.MethodDelete:
		if !isFile {
			return nil, ErrNotFound
		}
		delete(t.nodes, p)
		return &ftpfs.Response{Status: 250}, nil
	case ftpfs.MethodMakeDirectory:
		if parent := t.nodes[path.Dir(p)]; n != nil || parent == nil || !parent.dir {
			return nil, &textproto.Error{Code: 550, Msg: "Create directory operation failed."}
		}
		t.nodes[p] = &node{dir: true}
		return &ftpfs.Response{Status: 257}, nil
	case ftpfs.MethodRemoveDirectory:
		if !isDir || p == "/" || len(t.children(p)) > 0 {
			return nil, &textproto.Error{Code: 550, Msg: "Remove directory operation failed."}
		}
		delete(t.nodes, p)
		return &ftpfs.Response{Status: 250}, nil
	}
	return nil, &textproto.Error{Code: 502, Msg: "Command not implemented."}
}

// Upload buffers the written data and stores it when the writer is closed.
// Closing fails with a 553 reply if the parent directory does not exist.
func (t *Transport) Upload(_ context.Context, req *ftpfs.Request) (io.WriteCloser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, *req)
	if err := t.failures[req.Method]; err != nil {
		return nil, err
	}
	return &upload{t: t, path: req.URI.Path}, nil
}

type upload struct {
	bytes.Buffer
	t    *Transport
	path string
}

func (u *upload) Close() error {
	u.t.mu.Lock()
	defer u.t.mu.Unlock()
	if parent := u.t.nodes[path.Dir(u.path)]; parent == nil || !parent.dir {
		return &textproto.Error{Code: 553, Msg: "Could not create file."}
	}
	u.t.nodes[u.path] = &node{data: bytes.Clone(u.Bytes()), modTime: time.Now().UTC()}
	return nil
}

var _ ftpfs.Transport = (*Transport)(nil)
