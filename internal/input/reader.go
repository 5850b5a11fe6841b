package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

// FileSource reads one URL per line from a file, or from stdin when the
// path is "-". Blank lines and # comments are skipped and a missing
// scheme defaults to https://.
type FileSource struct {
	path   string
	logger utils.Logger
}

func NewFileSource(path string, logger utils.Logger) *FileSource {
	return &FileSource{path: path, logger: logger}
}

func (f *FileSource) URLs(ctx context.Context) ([]string, error) {
	if f.path == "-" {
		return f.parse(os.Stdin, "stdin")
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("opening targets file: %w", err)
	}
	defer file.Close()
	return f.parse(file, f.path)
}

func (f *FileSource) parse(r io.Reader, name string) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, utils.EnsureScheme(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	f.logger.Infof("Loaded %d URLs from %s", len(urls), name)
	return urls, nil
}

// StaticSource serves a fixed URL list, such as targets passed directly
// on the command line.
type StaticSource []string

func (s StaticSource) URLs(ctx context.Context) ([]string, error) {
	urls := make([]string, 0, len(s))
	for _, raw := range s {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		urls = append(urls, utils.EnsureScheme(trimmed))
	}
	return urls, nil
}
