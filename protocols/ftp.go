package protocols

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"flagftp/ftpfs"
)

const (
	DefaultPort    = "21"
	DefaultTimeout = 30 * time.Second
)

// FTPOption configures an FTPTransport.
type FTPOption func(*FTPTransport)

// WithTimeout bounds how long establishing each connection may take.
func WithTimeout(d time.Duration) FTPOption {
	return func(t *FTPTransport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithDisabledEPSV makes data connections use PASV only.
func WithDisabledEPSV(disabled bool) FTPOption {
	return func(t *FTPTransport) {
		t.disableEPSV = disabled
	}
}

// WithLogger sets the logger requests are reported to.
func WithLogger(l *zap.Logger) FTPOption {
	return func(t *FTPTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// FTPTransport implements ftpfs.Transport with github.com/jlaffaye/ftp.
// Each request dials a new control connection, logs in, runs a single command
// and quits. Connections are never shared, so an FTPTransport is safe for
// concurrent use.
type FTPTransport struct {
	timeout     time.Duration
	disableEPSV bool
	logger      *zap.Logger
}

func NewFTPTransport(opts ...FTPOption) *FTPTransport {
	t := &FTPTransport{
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do runs every method except STOR, which goes through Upload.
func (t *FTPTransport) Do(ctx context.Context, req *ftpfs.Request) (*ftpfs.Response, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	start := time.Now()
	log := t.logger.With(
		zap.String("method", string(req.Method)),
		zap.String("uri", req.URI.Redacted()),
	)

	conn, rec, err := t.connect(ctx, req)
	if err != nil {
		log.Debug("ftp connect failed", zap.Error(err))
		return nil, err
	}

	resp, err := t.run(conn, rec, req)
	if req.Method == ftpfs.MethodRetrieve && err == nil {
		log.Debug("ftp download started", zap.Duration("elapsed", time.Since(start)))
		return resp, nil
	}
	err = combine(err, conn.Quit())
	if err != nil {
		log.Debug("ftp request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, err
	}
	log.Debug("ftp request done", zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

func (t *FTPTransport) run(conn *ftp.ServerConn, rec *dataRecorder, req *ftpfs.Request) (*ftpfs.Response, error) {
	p := req.URI.Path
	switch req.Method {
	case ftpfs.MethodListDetails:
		// jlaffaye parses the listing itself; the raw text is taken from the
		// recorded data connection instead.
		rec.capture()
		if _, err := conn.List(p); err != nil {
			return nil, err
		}
		return &ftpfs.Response{
			Status: ftp.StatusClosingDataConnection,
			Body:   io.NopCloser(bytes.NewReader(rec.captured())),
		}, nil
	case ftpfs.MethodListNames:
		names, err := conn.NameList(p)
		if err != nil {
			return nil, err
		}
		return &ftpfs.Response{
			Status: ftp.StatusClosingDataConnection,
			Body:   io.NopCloser(strings.NewReader(strings.Join(names, "\r\n"))),
		}, nil
	case ftpfs.MethodGetTimestamp:
		modTime, err := conn.GetTime(p)
		if err != nil {
			return nil, err
		}
		return &ftpfs.Response{Status: ftp.StatusFile, LastModified: modTime}, nil
	case ftpfs.MethodGetSize:
		size, err := conn.FileSize(p)
		if err != nil {
			return nil, err
		}
		return &ftpfs.Response{Status: ftp.StatusFile, ContentLength: size}, nil
	case ftpfs.MethodRetrieve:
		r, err := conn.Retr(p)
		if err != nil {
			return nil, err
		}
		return &ftpfs.Response{
			Status: ftp.StatusAboutToSend,
			Body:   &retrBody{Response: r, conn: conn},
		}, nil
	case ftpfs.MethodDelete:
		if err := conn.Delete(p); err != nil {
			return nil, err
		}
		return &ftpfs.Response{Status: ftp.StatusRequestedFileActionOK}, nil
	case ftpfs.MethodMakeDirectory:
		if err := conn.MakeDir(p); err != nil {
			return nil, err
		}
		return &ftpfs.Response{Status: ftp.StatusPathCreated}, nil
	case ftpfs.MethodRemoveDirectory:
		if err := conn.RemoveDir(p); err != nil {
			return nil, err
		}
		return &ftpfs.Response{Status: ftp.StatusRequestedFileActionOK}, nil
	case ftpfs.MethodStore:
		return nil, errors.New("STOR requests must use Upload")
	}
	return nil, fmt.Errorf("unsupported method %q", req.Method)
}

// Upload starts a STOR request. The returned writer feeds the data connection
// through a pipe; Close waits for the server's final reply.
func (t *FTPTransport) Upload(ctx context.Context, req *ftpfs.Request) (io.WriteCloser, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	conn, _, err := t.connect(ctx, req)
	if err != nil {
		return nil, err
	}

	r, w := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := conn.Stor(req.URI.Path, r)
		// Unblocks the writer if the server refused the transfer early.
		r.CloseWithError(err)
		done <- err
	}()
	t.logger.Debug("ftp upload started", zap.String("uri", req.URI.Redacted()))
	return &storWriter{pw: w, done: done, conn: conn}, nil
}

func (t *FTPTransport) connect(ctx context.Context, req *ftpfs.Request) (*ftp.ServerConn, *dataRecorder, error) {
	addr := req.URI.Host
	if req.URI.Port() == "" {
		addr = net.JoinHostPort(req.URI.Hostname(), DefaultPort)
	}

	rec := &dataRecorder{ctx: ctx, dialer: net.Dialer{Timeout: t.timeout}}
	conn, err := ftp.Dial(addr,
		ftp.DialWithDialFunc(rec.dial),
		ftp.DialWithDisabledEPSV(t.disableEPSV),
		ftp.DialWithDisabledMLSD(true),
	)
	if err != nil {
		return nil, nil, err
	}

	user, password := req.Credentials.Username, req.Credentials.Password
	if user == "" {
		user, password = "anonymous", "anonymous"
	}
	if err := conn.Login(user, password); err != nil {
		return nil, nil, combine(err, conn.Quit())
	}
	return conn, rec, nil
}

func checkRequest(req *ftpfs.Request) error {
	if req == nil || req.URI == nil {
		return errors.New("request without URI")
	}
	return nil
}

// dataRecorder dials the connections of one ServerConn. The first dial is
// the control connection; once capture is on, everything read from later
// (data) connections is kept.
type dataRecorder struct {
	ctx    context.Context
	dialer net.Dialer

	mu        sync.Mutex
	dialed    bool
	capturing bool
	buf       bytes.Buffer
}

func (r *dataRecorder) dial(network, addr string) (net.Conn, error) {
	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := r.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dialed {
		r.dialed = true
		return conn, nil
	}
	if !r.capturing {
		return conn, nil
	}
	return &recordingConn{Conn: conn, rec: r}, nil
}

func (r *dataRecorder) capture() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capturing = true
	r.buf.Reset()
}

func (r *dataRecorder) captured() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Clone(r.buf.Bytes())
}

type recordingConn struct {
	net.Conn
	rec *dataRecorder
}

func (c *recordingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.rec.mu.Lock()
		c.rec.buf.Write(p[:n])
		c.rec.mu.Unlock()
	}
	return n, err
}

// retrBody releases both the data and the control connection of a download.
type retrBody struct {
	*ftp.Response
	conn *ftp.ServerConn

	once sync.Once
	err  error
}

func (b *retrBody) Close() error {
	b.once.Do(func() {
		b.err = combine(b.Response.Close(), b.conn.Quit())
	})
	return b.err
}

type storWriter struct {
	pw   *io.PipeWriter
	done chan error
	conn *ftp.ServerConn

	once sync.Once
	err  error
}

func (w *storWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *storWriter) Close() error {
	w.once.Do(func() {
		w.pw.Close()
		w.err = combine(<-w.done, w.conn.Quit())
	})
	return w.err
}

// combine aggregates release errors. A single error keeps its own message.
func combine(errs ...error) error {
	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return result.ErrorOrNil()
}
