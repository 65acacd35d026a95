package web

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// ReadURLFile reads a URL list file. See ParseURLList for the format.
func ReadURLFile(path string) ([]string, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	return ParseURLList(f)
}

// ParseURLList reads one URL per line. Blank lines and lines starting with
// '#' are ignored and duplicates are kept once, first occurrence first. A
// line that is not an absolute http(s) URL yields a *domain.LoadError and
// the rest of the list is still returned.
func ParseURLList(r io.Reader) ([]string, []error, error) {
	var (
		urls    []string
		invalid []error
		seen    = make(map[string]bool)
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := checkURL(line); err != nil {
			invalid = append(invalid, &domain.LoadError{
				SourceID: line,
				Err:      fmt.Errorf("line %d: %w", lineNo, err),
			})
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read url list: %w", err)
	}
	return urls, invalid, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}
