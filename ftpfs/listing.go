package ftpfs

import (
	"fmt"
	"io"
	"iter"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Record is one parsed line of a UNIX long-format listing.
type Record struct {
	IsDir bool
	Size  int64
	Name  string
	// URI is the entry name resolved against the listed directory. It is nil
	// when the listing was parsed without a directory.
	URI *url.URL
}

// Filter selects which records a listing yields.
type Filter int

const (
	FilterAll Filter = iota
	FilterFiles
	FilterDirectories
)

func (f Filter) match(isDir bool) bool {
	switch f {
	case FilterFiles:
		return !isDir
	case FilterDirectories:
		return isDir
	}
	return true
}

// listLine matches one `ls -l` line:
//
//	drwxr-xr-x   2 user group    4096 Jan 15 10:30 TestDirectory1
//	-rw-r--r--   1 user group     512 Mar  3  2022 report.txt
//
// The size is the last number before the month/day pair, which is followed
// by either a year or an HH:MM time. One trailing whitespace character is not
// part of the name.
var listLine = regexp.MustCompile(`(?i)^(?P<type>[d-])(?:[rwxts-]{3}){3}\s+\d+\s+.*?(?P<size>\d+)\s+\w+\s+\d{1,2}\s+(?:\d{4}|\d{1,2}:\d{2})\s+(?P<name>.+?)\s?$`)

var (
	typeGroup = listLine.SubexpIndex("type")
	sizeGroup = listLine.SubexpIndex("size")
	nameGroup = listLine.SubexpIndex("name")
)

// ParseListing lazily parses the text of a LIST response. Lines that do not
// look like UNIX long-format entries are skipped, as are the "." and ".."
// entries. dir should be a normalized directory URI; every record's URI is
// the record name joined to it.
//
// The sequence is deterministic: parsing the same text twice yields equal
// records in the same order.
func ParseListing(text string, dir *url.URL, filter Filter) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for line := range strings.Lines(text) {
			rec, ok := parseLine(strings.TrimSuffix(line, "\n"))
			if !ok || !filter.match(rec.IsDir) {
				continue
			}
			if dir != nil {
				rec.URI = join(dir, rec.Name)
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// ParseListingReader drains r and returns the parsed records. The only error
// it reports is a failure to read r.
func ParseListingReader(r io.Reader, dir *url.URL, filter Filter) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory listing: %w", err)
	}
	return slices.Collect(ParseListing(string(data), dir, filter)), nil
}

func parseLine(line string) (Record, bool) {
	m := listLine.FindStringSubmatch(line)
	if m == nil {
		return Record{}, false
	}
	size, err := strconv.ParseInt(m[sizeGroup], 10, 64)
	if err != nil {
		return Record{}, false
	}
	name := m[nameGroup]
	if name == "." || name == ".." {
		return Record{}, false
	}
	return Record{
		IsDir: strings.EqualFold(m[typeGroup], "d"),
		Size:  size,
		Name:  name,
	}, true
}
