package ftpfs

import (
	"context"
	"io"
	"net/url"
	"time"
)

// Method names the FTP operation a Request performs.
type Method string

const (
	MethodListDetails     Method = "LIST"
	MethodListNames       Method = "NLST"
	MethodGetTimestamp    Method = "MDTM"
	MethodGetSize         Method = "SIZE"
	MethodRetrieve        Method = "RETR"
	MethodStore           Method = "STOR"
	MethodDelete          Method = "DELE"
	MethodMakeDirectory   Method = "MKD"
	MethodRemoveDirectory Method = "RMD"
)

// Credentials are sent with every request of a Client. An empty Username
// logs in anonymously.
type Credentials struct {
	Username string
	Password string
}

// Request is a single FTP operation against one URI.
type Request struct {
	URI         *url.URL
	Method      Method
	Credentials Credentials
}

// Response is what a Transport returns for a Request. Only the fields
// relevant to the method are set: LastModified for MDTM, ContentLength for
// SIZE, Body for LIST, NLST and RETR.
type Response struct {
	// Status is the final FTP reply code, or 0 if the transport does not
	// expose it.
	Status        int
	LastModified  time.Time
	ContentLength int64
	Body          io.ReadCloser
}

// Close releases the response body, if any.
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// Transport performs FTP requests. Each call is independent: implementations
// open whatever connection they need and release it when the response (or the
// upload writer) is closed. Transports must be safe for concurrent use if the
// Client using them is shared between goroutines.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Upload starts a STOR request. Data written to the returned writer is
	// uploaded; Close finishes the transfer and reports its outcome.
	Upload(ctx context.Context, req *Request) (io.WriteCloser, error)
}
