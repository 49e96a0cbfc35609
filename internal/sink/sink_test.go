package sink

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jsonl")

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NotNil(t, s)

	s.Write(map[string]string{"a": "1"})
	s.Write(map[string]string{"a": "2"})
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"a":"1"}`, lines[0])
	assert.JSONEq(t, `{"a":"2"}`, lines[1])
}

func TestOpenWithEmptyPathReturnsNilSink(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	// A nil sink silently discards writes and closes cleanly.
	s.Write(map[string]string{"a": "1"})
	assert.NoError(t, s.Close())
}

func TestWriteIsSafeForConcurrentUse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jsonl")

	s, err := Open(path, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Write(map[string]int{"i": i})
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	assert.Equal(t, 50, count)
}
