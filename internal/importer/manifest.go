package importer

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
)

var (
	gnuMD5Line = regexp.MustCompile(`^([0-9a-fA-F]{32})\s+\*?(.+)$`)
	bsdMD5Line = regexp.MustCompile(`^MD5\s*\((.+)\)\s*=\s*([0-9a-fA-F]{32})$`)
)

// ManifestEntry is one conforming line of an MD5 manifest.
type ManifestEntry struct {
	MD5      string
	Filename string
	Attrs    map[string]string
}

// ManifestResult splits a manifest into conforming entries and the names (or
// raw lines) that did not meet the convention.
type ManifestResult struct {
	Entries []ManifestEntry
	NoMatch []string
}

// ParseManifest reads GNU (`<md5>  <name>`) and BSD (`MD5 (<name>) = <md5>`)
// lines. Filenames are matched against convention; its named groups become
// the entry's attributes.
func ParseManifest(r io.Reader, convention *regexp.Regexp) (*ManifestResult, error) {
	res := &ManifestResult{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sum, name, ok := splitMD5Line(line)
		if !ok {
			res.NoMatch = append(res.NoMatch, line)
			continue
		}
		name = path.Base(strings.ReplaceAll(name, `\`, "/"))

		m := convention.FindStringSubmatch(name)
		if m == nil {
			res.NoMatch = append(res.NoMatch, name)
			continue
		}
		attrs := make(map[string]string)
		for i, group := range convention.SubexpNames() {
			if i > 0 && group != "" {
				attrs[group] = m[i]
			}
		}
		res.Entries = append(res.Entries, ManifestEntry{
			MD5:      strings.ToLower(sum),
			Filename: name,
			Attrs:    attrs,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return res, nil
}

func splitMD5Line(line string) (sum, name string, ok bool) {
	if m := gnuMD5Line.FindStringSubmatch(line); m != nil {
		return m[1], strings.TrimSpace(m[2]), true
	}
	if m := bsdMD5Line.FindStringSubmatch(line); m != nil {
		return m[2], strings.TrimSpace(m[1]), true
	}
	return "", "", false
}
