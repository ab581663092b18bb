package ftpfs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
)

// Option configures a Client at construction time.
type Option func(*Client) error

// WithLocation sets the time zone LastWriteTime values are reported in.
// The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) error {
		if loc == nil {
			return invalidArgument("location", "missing")
		}
		c.location = loc
		return nil
	}
}

// Client performs operations on an FTP server through a Transport.
//
// Every operation issues its own requests and releases them before
// returning; nothing is pooled or cached. A Client is never mutated after
// construction, so it is safe for concurrent use as long as its Transport is.
type Client struct {
	transport   Transport
	credentials Credentials
	location    *time.Location
}

// NewClient returns a Client that sends credentials with every request.
//
// Example:
//
//	client, err := ftpfs.NewClient(protocols.NewFTPTransport(), ftpfs.Credentials{
//	    Username: "user",
//	    Password: "secret",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dirs, err := client.ListDirectories(ctx, "ftp://ftp.example.com/pub")
func NewClient(transport Transport, credentials Credentials, options ...Option) (*Client, error) {
	if transport == nil {
		return nil, invalidArgument("transport", "missing")
	}
	c := &Client{
		transport:   transport,
		credentials: credentials,
		location:    time.UTC,
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

// Credentials returns the credentials sent with every request.
func (c *Client) Credentials() Credentials {
	return c.credentials
}

// ListDirectories returns the directories contained in dir.
func (c *Client) ListDirectories(ctx context.Context, dir string) ([]*DirectoryEntry, error) {
	u, err := parseNormalized("directory", dir)
	if err != nil {
		return nil, err
	}
	records, err := c.list(ctx, u, FilterDirectories)
	if err != nil {
		return nil, err
	}
	dirs := make([]*DirectoryEntry, 0, len(records))
	for _, rec := range records {
		dirs = append(dirs, newDirectoryEntry(rec.URI))
	}
	return dirs, nil
}

// ListFiles returns the files contained in dir. The listing gives each
// file's length; its last write time costs one MDTM request per file.
func (c *Client) ListFiles(ctx context.Context, dir string) ([]*FileEntry, error) {
	u, err := parseNormalized("directory", dir)
	if err != nil {
		return nil, err
	}
	records, err := c.list(ctx, u, FilterFiles)
	if err != nil {
		return nil, err
	}
	files := make([]*FileEntry, 0, len(records))
	for _, rec := range records {
		modTime, err := c.timestamp(ctx, rec.URI)
		if err != nil {
			return nil, err
		}
		f, err := newFileEntry(rec.URI, modTime, rec.Size)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// ListNames returns the normalized URIs of the names reported by NLST for
// dir. It does not distinguish files from directories.
func (c *Client) ListNames(ctx context.Context, dir string) ([]string, error) {
	u, err := parseNormalized("directory", dir)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, u, MethodListNames)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	var names []string
	if resp.Body == nil {
		return names, nil
	}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		// Some servers answer NLST with full paths.
		name := path.Base(strings.TrimSpace(scanner.Text()))
		if name == "" || name == "." || name == ".." || name == "/" {
			continue
		}
		names = append(names, join(u, name).String())
	}
	if err := scanner.Err(); err != nil {
		return nil, transportError(MethodListNames, u, err)
	}
	return names, nil
}

// OpenRead opens file for reading. The file size is queried first so the
// returned stream can report its Length. The caller must close the stream.
func (c *Client) OpenRead(ctx context.Context, file string) (*SizedStream, error) {
	u, err := parseNormalized("file", file)
	if err != nil {
		return nil, err
	}
	size, err := c.size(ctx, u)
	if err != nil {
		return nil, err
	}
	return c.retrieve(ctx, u, size)
}

// OpenReadFile opens a file for reading using the length already known from
// f, skipping the SIZE request.
func (c *Client) OpenReadFile(ctx context.Context, f *FileEntry) (*SizedStream, error) {
	if f == nil {
		return nil, invalidArgument("file", "missing")
	}
	return c.retrieve(ctx, f.uri, f.length)
}

// OpenWrite starts an upload to file. Closing the returned writer completes
// the transfer and reports whether the server accepted it.
func (c *Client) OpenWrite(ctx context.Context, file string) (io.WriteCloser, error) {
	u, err := parseNormalized("file", file)
	if err != nil {
		return nil, err
	}
	w, err := c.transport.Upload(ctx, c.request(u, MethodStore))
	if err != nil {
		return nil, transportError(MethodStore, u, err)
	}
	return &uploadWriter{WriteCloser: w, uri: u}, nil
}

// DeleteFile removes file from the server.
func (c *Client) DeleteFile(ctx context.Context, file string) error {
	return c.exec(ctx, "file", file, MethodDelete)
}

// DeleteDirectory removes dir from the server. Most servers refuse to
// remove a directory that is not empty.
func (c *Client) DeleteDirectory(ctx context.Context, dir string) error {
	return c.exec(ctx, "directory", dir, MethodRemoveDirectory)
}

// CreateDirectory creates dir. Its parent must exist.
func (c *Client) CreateDirectory(ctx context.Context, dir string) error {
	return c.exec(ctx, "directory", dir, MethodMakeDirectory)
}

// GetFileInfo fetches the last write time and length of file.
func (c *Client) GetFileInfo(ctx context.Context, file string) (*FileEntry, error) {
	u, err := parseNormalized("file", file)
	if err != nil {
		return nil, err
	}
	modTime, err := c.timestamp(ctx, u)
	if err != nil {
		return nil, err
	}
	size, err := c.size(ctx, u)
	if err != nil {
		return nil, err
	}
	return newFileEntry(u, modTime, size)
}

// GetDirectoryInfo returns an entry for dir without contacting the server.
func (c *Client) GetDirectoryInfo(_ context.Context, dir string) (*DirectoryEntry, error) {
	u, err := parseNormalized("directory", dir)
	if err != nil {
		return nil, err
	}
	return newDirectoryEntry(u), nil
}

// FileExists reports whether file appears among the files of its parent
// directory listing.
func (c *Client) FileExists(ctx context.Context, file string) (bool, error) {
	u, err := parseNormalized("file", file)
	if err != nil {
		return false, err
	}
	return c.contains(ctx, u, FilterFiles)
}

// DirectoryExists reports whether dir appears among the directories of its
// parent directory listing. The root exists if it can be listed.
func (c *Client) DirectoryExists(ctx context.Context, dir string) (bool, error) {
	u, err := parseNormalized("directory", dir)
	if err != nil {
		return false, err
	}
	if isRoot(u) {
		if _, err := c.list(ctx, u, FilterDirectories); err != nil {
			return false, err
		}
		return true, nil
	}
	return c.contains(ctx, u, FilterDirectories)
}

// contains lists the parent of u and matches normalized URIs exactly.
// Stat-style replies are not portable enough to tell a missing path apart
// from other failures.
func (c *Client) contains(ctx context.Context, u *url.URL, filter Filter) (bool, error) {
	records, err := c.list(ctx, parent(u), filter)
	if err != nil {
		return false, err
	}
	want := u.String()
	for _, rec := range records {
		if rec.URI.String() == want {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) list(ctx context.Context, dir *url.URL, filter Filter) ([]Record, error) {
	resp, err := c.do(ctx, dir, MethodListDetails)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	if resp.Body == nil {
		return nil, nil
	}
	records, err := ParseListingReader(resp.Body, dir, filter)
	if err != nil {
		return nil, transportError(MethodListDetails, dir, err)
	}
	return records, nil
}

func (c *Client) timestamp(ctx context.Context, u *url.URL) (time.Time, error) {
	resp, err := c.do(ctx, u, MethodGetTimestamp)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Close()
	return resp.LastModified.In(c.location), nil
}

func (c *Client) size(ctx context.Context, u *url.URL) (int64, error) {
	resp, err := c.do(ctx, u, MethodGetSize)
	if err != nil {
		return 0, err
	}
	defer resp.Close()
	if resp.ContentLength < 0 {
		return 0, transportError(MethodGetSize, u, fmt.Errorf("%w: size %d", ErrOutOfRange, resp.ContentLength))
	}
	return resp.ContentLength, nil
}

func (c *Client) retrieve(ctx context.Context, u *url.URL, size int64) (*SizedStream, error) {
	resp, err := c.do(ctx, u, MethodRetrieve)
	if err != nil {
		return nil, err
	}
	if resp.Body == nil {
		return nil, transportError(MethodRetrieve, u, io.ErrUnexpectedEOF)
	}
	return NewSizedStream(resp.Body, size), nil
}

// exec runs a request whose response carries nothing but its status.
func (c *Client) exec(ctx context.Context, name, raw string, method Method) error {
	u, err := parseNormalized(name, raw)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, u, method)
	if err != nil {
		return err
	}
	return resp.Close()
}

func (c *Client) do(ctx context.Context, u *url.URL, method Method) (*Response, error) {
	resp, err := c.transport.Do(ctx, c.request(u, method))
	if err != nil {
		return nil, transportError(method, u, err)
	}
	if resp == nil {
		resp = &Response{}
	}
	return resp, nil
}

func (c *Client) request(u *url.URL, method Method) *Request {
	return &Request{URI: u, Method: method, Credentials: c.credentials}
}

func transportError(method Method, u *url.URL, err error) error {
	return &TransportError{Method: method, URI: u.Redacted(), Err: err}
}

type uploadWriter struct {
	io.WriteCloser
	uri *url.URL
}

func (w *uploadWriter) Close() error {
	if err := w.WriteCloser.Close(); err != nil {
		return transportError(MethodStore, w.uri, err)
	}
	return nil
}
