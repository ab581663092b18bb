package ftpfs

import (
	"net/url"
	"slices"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func mustDir(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := ParseURI(raw)
	require.NoError(t, err)
	n, err := Normalize(u)
	require.NoError(t, err)
	return n
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		ok       bool
		wantDir  bool
		wantSize int64
		wantName string
	}{
		{
			name:     "directory with time",
			line:     "drwxr-xr-x   2 user group    4096 Jan 15 10:30 TestDirectory1",
			ok:       true,
			wantDir:  true,
			wantSize: 4096,
			wantName: "TestDirectory1",
		},
		{
			name:     "file with year",
			line:     "-rw-r--r--   1 user group     512 Mar  3  2022 report.txt",
			ok:       true,
			wantSize: 512,
			wantName: "report.txt",
		},
		{
			name:     "empty file",
			line:     "-rw-r--r--   1 user group       0 Dec 20 10:30 empty",
			ok:       true,
			wantSize: 0,
			wantName: "empty",
		},
		{
			name:     "name with spaces",
			line:     "-rw-rw-rw-   1 root  root   1037794 Dec 14 12:22 my large document.pdf",
			ok:       true,
			wantSize: 1037794,
			wantName: "my large document.pdf",
		},
		{
			name:     "name containing digits and a year",
			line:     "-rw-r--r--   1 user group    2048 Dec  1  2021 2020 annual 12 report",
			ok:       true,
			wantSize: 2048,
			wantName: "2020 annual 12 report",
		},
		{
			name:     "owner without group",
			line:     "-rw-r--r--   1 user     4096 Dec 20 10:30 config.txt",
			ok:       true,
			wantSize: 4096,
			wantName: "config.txt",
		},
		{
			name:     "sticky bit",
			line:     "drwxrwxrwt   9 root root     4096 Feb  2 08:00 tmp",
			ok:       true,
			wantDir:  true,
			wantSize: 4096,
			wantName: "tmp",
		},
		{
			name:     "upper case type",
			line:     "DRWXR-XR-X   2 user group    4096 Jan 15 10:30 Loud",
			ok:       true,
			wantDir:  true,
			wantSize: 4096,
			wantName: "Loud",
		},
		{
			name:     "one trailing whitespace is trimmed",
			line:     "-rw-r--r--   1 user group     512 Mar  3  2022 report.txt\r",
			ok:       true,
			wantSize: 512,
			wantName: "report.txt",
		},
		{name: "dot", line: "drwxr-xr-x   2 user group    4096 Jan 15 10:30 ."},
		{name: "dot dot", line: "drwxr-xr-x   9 user group    4096 Jan 15 10:30 .."},
		{name: "total line", line: "total 24"},
		{name: "blank", line: ""},
		{name: "symlink", line: "lrwxrwxrwx   1 root  root        11 Dec 20 10:30 link -> target.txt"},
		{name: "dos format", line: "12-14-23  12:22PM           1037794 large-document.pdf"},
		{name: "missing date", line: "-rw-r--r--   1 user group     512 report.txt"},
		{name: "size overflows", line: "-rw-r--r--   1 user group 99999999999999999999 Mar  3  2022 huge.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := parseLine(tt.line)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			require.Equal(t, tt.wantDir, rec.IsDir)
			require.Equal(t, tt.wantSize, rec.Size)
			require.Equal(t, tt.wantName, rec.Name)
		})
	}
}

const sampleListing = "total 24\r\n" +
	"drwxr-xr-x   4 user group    4096 Jan 15 10:30 .\r\n" +
	"drwxr-xr-x  12 user group    4096 Jan 15 10:30 ..\r\n" +
	"drwxr-xr-x   2 user group    4096 Jan 15 10:30 TestDirectory1\r\n" +
	"-rw-r--r--   1 user group     512 Mar  3  2022 report.txt\r\n" +
	"this line is a banner\r\n" +
	"drwxr-xr-x   2 user group    4096 Feb  1  2020 archive\r\n" +
	"-rw-r--r--   1 user group      17 Jan 15 09:01 notes.md\r\n" +
	"drwxr-xr-x   4 user group    4096 Jan 15 10:30 .\r\n"

func TestParseListing_ResolvesURIs(t *testing.T) {
	dir := mustDir(t, "ftp://host/")
	records := slices.Collect(ParseListing("drwxr-xr-x   2 user group    4096 Jan 15 10:30 TestDirectory1\n", dir, FilterAll))
	require.Len(t, records, 1)
	require.True(t, records[0].IsDir)
	require.Equal(t, "TestDirectory1", records[0].Name)
	require.Equal(t, "ftp://host/TestDirectory1", records[0].URI.String())

	sub := mustDir(t, "ftp://host/pub/data")
	records = slices.Collect(ParseListing("-rw-r--r--   1 user group     512 Mar  3  2022 report.txt", sub, FilterAll))
	require.Len(t, records, 1)
	require.Equal(t, "ftp://host/pub/data/report.txt", records[0].URI.String())
}

func TestParseListing_Deterministic(t *testing.T) {
	dir := mustDir(t, "ftp://host/pub")
	first := slices.Collect(ParseListing(sampleListing, dir, FilterAll))
	second := slices.Collect(ParseListing(sampleListing, dir, FilterAll))
	require.Equal(t, first, second)

	var names []string
	for _, rec := range first {
		names = append(names, rec.Name)
	}
	require.Equal(t, []string{"TestDirectory1", "report.txt", "archive", "notes.md"}, names)
}

func TestParseListing_FilterPartitions(t *testing.T) {
	dir := mustDir(t, "ftp://host/pub")
	names := func(filter Filter) map[string]bool {
		out := map[string]bool{}
		for rec := range ParseListing(sampleListing, dir, filter) {
			out[rec.Name] = true
		}
		return out
	}

	all := names(FilterAll)
	dirs := names(FilterDirectories)
	files := names(FilterFiles)

	require.Equal(t, map[string]bool{"TestDirectory1": true, "archive": true}, dirs)
	require.Equal(t, map[string]bool{"report.txt": true, "notes.md": true}, files)
	for name := range dirs {
		require.False(t, files[name], "%s is both a file and a directory", name)
	}
	union := map[string]bool{}
	for name := range dirs {
		union[name] = true
	}
	for name := range files {
		union[name] = true
	}
	require.Equal(t, all, union)
}

func TestParseListing_NeverYieldsDotEntries(t *testing.T) {
	text := strings.Repeat("drwxr-xr-x   4 user group    4096 Jan 15 10:30 .\n"+
		"drwxr-xr-x   4 user group    4096 Jan 15 10:30 ..\n", 10)
	require.Empty(t, slices.Collect(ParseListing(text, nil, FilterAll)))
}

func TestParseListing_StopsEarly(t *testing.T) {
	count := 0
	for range ParseListing(sampleListing, nil, FilterAll) {
		count++
		break
	}
	require.Equal(t, 1, count)
}

func TestParseListingReader(t *testing.T) {
	dir := mustDir(t, "ftp://host/pub")
	records, err := ParseListingReader(strings.NewReader(sampleListing), dir, FilterFiles)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(512), records[0].Size)

	_, err = ParseListingReader(iotest.ErrReader(iotest.ErrTimeout), dir, FilterAll)
	require.ErrorIs(t, err, iotest.ErrTimeout)
}
