package ftpfs

import (
	"net/url"
	"path"
	"strings"
)

// Scheme is the only URI scheme accepted by this package.
const Scheme = "ftp"

// ParseURI parses raw and checks that it is an absolute FTP-scheme URI with a
// host. The result is not normalized.
func ParseURI(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, invalidArgument("uri", "empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, invalidArgument("uri", "%v", err)
	}
	if err := checkFTP(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Normalize returns a copy of u with backslashes turned into slashes, runs of
// separators collapsed, dot segments resolved and any trailing separator
// removed (except for the root). The host is lower-cased and user info is
// dropped; credentials travel with the Client, not the URI. Normalize is
// idempotent and its String form always starts with "ftp://".
func Normalize(u *url.URL) (*url.URL, error) {
	if err := checkFTP(u); err != nil {
		return nil, err
	}
	return &url.URL{
		Scheme: Scheme,
		Host:   strings.ToLower(u.Host),
		Path:   cleanPath(u.Path),
	}, nil
}

// NormalizeString parses and normalizes raw, returning the canonical string
// used for URI comparisons.
func NormalizeString(raw string) (string, error) {
	u, err := ParseURI(raw)
	if err != nil {
		return "", err
	}
	n, err := Normalize(u)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

func parseNormalized(name, raw string) (*url.URL, error) {
	u, err := ParseURI(raw)
	if err != nil {
		return nil, invalidArgument(name, "%q isn't a valid FTP URI", raw)
	}
	return Normalize(u)
}

func checkFTP(u *url.URL) error {
	if u == nil {
		return invalidArgument("uri", "missing")
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return invalidArgument("uri", "%q isn't a valid FTP URI", u.Redacted())
	}
	if u.Host == "" {
		return invalidArgument("uri", "%q has no host", u.Redacted())
	}
	if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return invalidArgument("uri", "%q has a query or fragment; escape ? and # in names", u.Redacted())
	}
	return nil
}

func cleanPath(p string) string {
	segments := strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	return path.Clean("/" + strings.Join(segments, "/"))
}

// parent returns the directory containing u. The root is its own parent.
func parent(u *url.URL) *url.URL {
	p := *u
	p.Path = path.Dir(u.Path)
	p.RawPath = ""
	return &p
}

// join resolves an entry name found in a listing of dir.
func join(dir *url.URL, name string) *url.URL {
	j := *dir
	j.Path = cleanPath(dir.Path + "/" + name)
	j.RawPath = ""
	return &j
}

func isRoot(u *url.URL) bool {
	return u.Path == "/" || u.Path == ""
}
