// Package ftpfs exposes a remote FTP server as a small file-system API.
//
// A Client turns high-level operations (list a directory, open a file,
// check whether a path exists) into individual FTP requests executed by a
// Transport. Every URI handed to the package must use the ftp scheme; URIs
// are normalized before they reach the transport, so equivalent spellings
// such as "ftp://host/a//b/" and "ftp://host/a\b" refer to the same entry.
//
// Directory listings are parsed from the Unix-style LIST format only. Lines
// in any other format are skipped.
package ftpfs
