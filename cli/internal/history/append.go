// Append and rotation for history.jsonl.

package history

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"codexreview/cli/internal/erruser"
)

const (
	historyFilename    = "history.jsonl"
	historyGzPrefix    = "history.jsonl."
	historyGzSuffix    = ".gz"
	DefaultMaxRecords  = 200
	maxRotatedArchives = 5
)

// ReadRecords reads all history records from stateDir: rotated archives
// (history.jsonl.N.gz) in ascending order by N, then the active history.jsonl.
// Returns concatenated records, oldest first. A missing stateDir or file
// yields no records.
func ReadRecords(stateDir string) ([]Record, error) {
	archives, err := listArchives(stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, erruser.New("Could not read history directory.", err)
	}
	var out []Record
	for _, a := range archives {
		recs, err := readRecordsFromGzip(filepath.Join(stateDir, a.name))
		if err != nil {
			return nil, erruser.New("Could not read history archive.", err)
		}
		out = append(out, recs...)
	}
	// Active file last (most recent).
	lines, err := readLines(filepath.Join(stateDir, historyFilename))
	if err != nil && !os.IsNotExist(err) {
		return nil, erruser.New("Could not read history file.", err)
	}
	recs, err := parseRecordLines(lines)
	if err != nil {
		return nil, erruser.New("Could not read history file.", err)
	}
	return append(out, recs...), nil
}

// Append writes one record as a single JSON line to stateDir/history.jsonl.
// Creates stateDir and the file if missing. If maxRecords > 0 and the file
// has more than maxRecords lines after appending, the oldest lines move to a
// new gzip archive and the active file keeps the last maxRecords lines.
func Append(stateDir string, record Record, maxRecords int) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return erruser.New("Could not create state directory for history.", err)
	}
	path := filepath.Join(stateDir, historyFilename)
	line, err := json.Marshal(record)
	if err != nil {
		return erruser.New("Could not record review history.", err)
	}
	if err := appendLine(path, append(line, '\n')); err != nil {
		return erruser.New("Could not record review history.", err)
	}
	if maxRecords > 0 {
		return rotateIfNeeded(path, maxRecords)
	}
	return nil
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// rotateIfNeeded moves all but the last maxRecords lines of path into a new
// archive, prunes archives beyond maxRotatedArchives (lowest N first), then
// rewrites path via temp + rename.
func rotateIfNeeded(path string, maxRecords int) error {
	lines, err := readLines(path)
	if err != nil {
		return erruser.New("Could not read history for rotation.", err)
	}
	if len(lines) <= maxRecords {
		return nil
	}
	dropped := lines[:len(lines)-maxRecords]
	keep := lines[len(lines)-maxRecords:]
	dir := filepath.Dir(path)

	archives, err := listArchives(dir)
	if err != nil {
		return erruser.New("Could not rotate history file.", err)
	}
	next := 1
	if len(archives) > 0 {
		next = archives[len(archives)-1].n + 1
	}
	archivePath := filepath.Join(dir, historyGzPrefix+strconv.Itoa(next)+historyGzSuffix)
	if err := writeGzippedLines(archivePath, dropped); err != nil {
		return erruser.New("Could not write rotated history archive.", err)
	}
	archives = append(archives, archive{n: next})
	for i := 0; i < len(archives)-maxRotatedArchives; i++ {
		old := filepath.Join(dir, historyGzPrefix+strconv.Itoa(archives[i].n)+historyGzSuffix)
		if err := os.Remove(old); err != nil {
			return erruser.New("Could not prune history archives.", err)
		}
	}

	if err := writeLinesAtomic(dir, path, keep); err != nil {
		return erruser.New("Could not rotate history file.", err)
	}
	return nil
}

func writeLinesAtomic(dir, path string, lines []string) error {
	f, err := os.CreateTemp(dir, "history.*.tmp")
	if err != nil {
		return err
	}
	tmpPath := f.Name()
	defer func() { _ = os.Remove(tmpPath) }()
	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := w.WriteString(l); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

type archive struct {
	n    int
	name string
}

// listArchives returns history.jsonl.N.gz entries in dir sorted by N ascending.
func listArchives(dir string) ([]archive, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []archive
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, historyGzPrefix) || !strings.HasSuffix(name, historyGzSuffix) {
			continue
		}
		n, err := strconv.Atoi(name[len(historyGzPrefix) : len(name)-len(historyGzSuffix)])
		if err != nil || n < 1 {
			continue
		}
		out = append(out, archive{n: n, name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].n < out[j].n })
	return out, nil
}

func writeGzippedLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	gw := gzip.NewWriter(f)
	for _, l := range lines {
		if _, err := io.WriteString(gw, l); err != nil {
			_ = gw.Close()
			return err
		}
	}
	if err := gw.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func readRecordsFromGzip(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer func() { _ = gr.Close() }()
	lines, err := readLinesFromReader(gr)
	if err != nil {
		return nil, err
	}
	return parseRecordLines(lines)
}

func parseRecordLines(lines []string) ([]Record, error) {
	var out []Record
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("invalid history line: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// maxLineSize caps a single history line. Records carry only metrics, so
// 1MB leaves ample room for long agent argv.
const maxLineSize = 1 << 20

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLinesFromReader(f)
}

func readLinesFromReader(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		lines = append(lines, sc.Text()+"\n")
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
