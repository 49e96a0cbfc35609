// Package inputs reads the JSON-lines request stream that drives a
// dispatch run.
package inputs

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blazeapi/blaze/internal/record"
)

// maxLineBytes bounds a single input line, guarding against an unbounded
// read on a malformed or hostile file.
const maxLineBytes = 10 * 1024 * 1024

// ReadFile opens path and parses it as JSON-lines, returning every request
// in file order. Blank lines are skipped. A parse error on any line aborts
// the whole read and reports the offending 1-based line number.
func ReadFile(path string) ([]*record.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file %q: %w", path, err)
	}
	defer f.Close()

	return Read(f)
}

// Read parses a JSON-lines stream into requests, applying the same
// blank-line-skip and abort-on-parse-error rules as ReadFile.
func Read(r io.Reader) ([]*record.Request, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var requests []*record.Request
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		req := &record.Request{}
		if err := json.Unmarshal([]byte(line), req); err != nil {
			return nil, fmt.Errorf("parse input line %d: %w", lineNumber, err)
		}
		req.LineNumber = lineNumber
		requests = append(requests, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	return requests, nil
}
