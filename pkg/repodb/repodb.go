// Package repodb decodes pacman-style repository database archives.
//
// A database is a tar archive, usually compressed, holding one directory
// per package named "<name>-<version>/". Each directory contains a "desc"
// member and, in older layouts, separate "depends" and "files" members;
// all members use the same block format:
//
//	%NAME%
//	zstd
//
//	%VERSION%
//	1.5.7-1
//
//	%DEPENDS%
//	glibc
//	xz>=5.0
//
// Members of one package are merged before field extraction, so both the
// single-member and the split layout decode identically. Unknown field
// names are ignored for forward compatibility. A package missing a
// required field is excluded from the result and reported as a
// diagnostic; only an unreadable archive fails the whole parse.
package repodb

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/repopulse/repopulse/pkg/errors"
)

// Record is one package entry decoded from a repository database.
// Dependency-kind fields hold raw tokens ("name", "name<op>version", or
// "name: reason" for optional dependencies); constraint evaluation is up
// to the consumer.
type Record struct {
	Name      string
	Base      string
	Version   string
	Desc      string
	URL       string
	Filename  string
	Arch      string
	Packager  string
	PGPSig    string
	SHA256Sum string
	CSize     int64
	ISize     int64
	BuildDate int64

	Groups   []string
	Licenses []string

	Depends      []string
	MakeDepends  []string
	CheckDepends []string
	OptDepends   []string
	Provides     []string
	Conflicts    []string
	Replaces     []string

	Files []string
}

// Parse decodes a repository database. The filename selects the
// decompression layer (".zst", ".xz", ".gz", else plain tar). Records are
// returned sorted by package directory name. Per-package failures are
// returned as diagnostics; err is non-nil only when the archive itself
// cannot be read.
func Parse(filename string, r io.Reader) ([]Record, []error, error) {
	raw, closer, err := decompress(filename, r)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeMalformedRepoData, err, "open archive %s", filename)
	}
	if closer != nil {
		defer closer()
	}

	// Gather member bodies per package directory first: desc and depends
	// arrive as separate members in older databases.
	members := map[string]map[string][]byte{}
	tr := tar.NewReader(raw)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeMalformedRepoData, err, "read archive %s", filename)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		dir, member, ok := strings.Cut(name, "/")
		if !ok || dir == "" || member == "" {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeMalformedRepoData, err, "read member %s", hdr.Name)
		}
		if members[dir] == nil {
			members[dir] = map[string][]byte{}
		}
		members[dir][member] = data
	}

	dirs := make([]string, 0, len(members))
	for dir := range members {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var records []Record
	var diags []error
	for _, dir := range dirs {
		fields := map[string][]string{}
		for _, member := range []string{"desc", "depends", "files"} {
			if data, ok := members[dir][member]; ok {
				parseFields(data, fields)
			}
		}

		rec, err := newRecord(fields)
		if err != nil {
			diags = append(diags, errors.Wrap(errors.ErrCodeMalformedRepoData, err, "package %s", dir))
			continue
		}
		records = append(records, rec)
	}

	return records, diags, nil
}

// decompress wraps r according to the database filename suffix.
func decompress(filename string, r io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(filename, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case strings.HasSuffix(filename, ".xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xr, nil, nil
	case strings.HasSuffix(filename, ".gz"):
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gr, func() { _ = gr.Close() }, nil
	default:
		return r, nil, nil
	}
}

// parseFields scans %FIELD% blocks into fields, merging with earlier
// members of the same package.
func parseFields(data []byte, fields map[string][]string) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") && len(line) > 2:
			current = strings.Trim(line, "%")
		case line == "":
			current = ""
		case current != "":
			fields[current] = append(fields[current], line)
		}
	}
}

func newRecord(fields map[string][]string) (Record, error) {
	first := func(key string) string {
		if v := fields[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	rec := Record{
		Name:      first("NAME"),
		Base:      first("BASE"),
		Version:   first("VERSION"),
		Desc:      first("DESC"),
		URL:       first("URL"),
		Filename:  first("FILENAME"),
		Arch:      first("ARCH"),
		Packager:  first("PACKAGER"),
		PGPSig:    first("PGPSIG"),
		SHA256Sum: first("SHA256SUM"),

		Groups:   fields["GROUPS"],
		Licenses: fields["LICENSE"],

		Depends:      fields["DEPENDS"],
		MakeDepends:  fields["MAKEDEPENDS"],
		CheckDepends: fields["CHECKDEPENDS"],
		OptDepends:   fields["OPTDEPENDS"],
		Provides:     fields["PROVIDES"],
		Conflicts:    fields["CONFLICTS"],
		Replaces:     fields["REPLACES"],

		Files: fields["FILES"],
	}

	if rec.Name == "" {
		return Record{}, errors.New(errors.ErrCodeMalformedRepoData, "missing %%NAME%%")
	}
	if rec.Version == "" {
		return Record{}, errors.New(errors.ErrCodeMalformedRepoData, "missing %%VERSION%%")
	}
	rec.CSize, _ = strconv.ParseInt(first("CSIZE"), 10, 64)
	rec.ISize, _ = strconv.ParseInt(first("ISIZE"), 10, 64)
	rec.BuildDate, _ = strconv.ParseInt(first("BUILDDATE"), 10, 64)

	return rec, nil
}
