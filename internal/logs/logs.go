// Package logs manages the per-invocation transcript files: one append-only
// text file per script run, named by start time and operation.
package logs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// TimeLayout is the timestamp prefix of every artifact name.
const TimeLayout = "20060102-150405.000"

const ext = ".log"

// Dir is a directory of log artifacts. It is created lazily on first use.
type Dir struct {
	Path string
}

// NewDir returns a Dir rooted at path.
func NewDir(path string) *Dir {
	return &Dir{Path: path}
}

// Create opens a new artifact for operation started at t. Names never
// collide: a numeric suffix is added when another run of the same
// operation started in the same millisecond.
func (d *Dir) Create(operation string, t time.Time) (*Artifact, error) {
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	base := t.Format(TimeLayout) + "_" + sanitize(operation)
	for n := 0; ; n++ {
		name := base + ext
		if n > 0 {
			name = fmt.Sprintf("%s-%d%s", base, n, ext)
		}
		path := filepath.Join(d.Path, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating log %s: %w", name, err)
		}
		return &Artifact{f: f, path: path}, nil
	}
}

// Artifact is an open transcript. Lines are written through to disk as they
// arrive so partial progress is visible to readers.
type Artifact struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	closed bool
}

// Path returns the artifact's file path.
func (a *Artifact) Path() string { return a.path }

// WriteLine appends line followed by a newline.
func (a *Artifact) WriteLine(line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fs.ErrClosed
	}
	_, err := a.f.WriteString(line + "\n")
	return err
}

// WriteText appends every line of text.
func (a *Artifact) WriteText(text string) error {
	if text == "" {
		return nil
	}
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		if err := a.WriteLine(strings.TrimSuffix(line, "\r")); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the file. After Close the artifact is never written again.
func (a *Artifact) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.f.Close()
}

// Entry describes one artifact on disk.
type Entry struct {
	Name      string    `json:"name"`
	Operation string    `json:"operation"`
	Time      time.Time `json:"time"`
	Size      int64     `json:"size"`
}

// List returns all artifacts, newest first. A missing directory is empty.
func (d *Dir) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading log directory: %w", err)
	}
	var out []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ext) {
			continue
		}
		e, ok := parseName(de.Name())
		if !ok {
			continue
		}
		if info, err := de.Info(); err == nil {
			e.Size = info.Size()
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(b.Name, a.Name) })
	return out, nil
}

// Read returns the content of the artifact called name.
func (d *Dir) Read(name string) (string, error) {
	path, err := d.resolve(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading log %s: %w", name, err)
	}
	return string(data), nil
}

// Match is one line that matched a search.
type Match struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Search returns every line of every artifact containing query,
// case-insensitively, newest artifact first.
func (d *Dir) Search(query string) ([]Match, error) {
	if query == "" {
		return nil, errors.New("empty search query")
	}
	entries, err := d.List()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	var out []Match
	for _, e := range entries {
		matches, err := searchFile(filepath.Join(d.Path, e.Name), e.Name, needle)
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	return out, nil
}

func searchFile(path, name, needle string) ([]Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	var out []Match
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for n := 1; sc.Scan(); n++ {
		if strings.Contains(strings.ToLower(sc.Text()), needle) {
			out = append(out, Match{File: name, Line: n, Text: sc.Text()})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning log %s: %w", name, err)
	}
	return out, nil
}

func (d *Dir) resolve(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || !strings.HasSuffix(name, ext) {
		return "", fmt.Errorf("invalid log name %q", name)
	}
	return filepath.Join(d.Path, name), nil
}

func parseName(name string) (Entry, bool) {
	stem := strings.TrimSuffix(name, ext)
	ts, op, ok := strings.Cut(stem, "_")
	if !ok {
		return Entry{}, false
	}
	t, err := time.ParseInLocation(TimeLayout, ts, time.Local)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Name: name, Operation: op, Time: t}, true
}

func sanitize(op string) string {
	if op == "" {
		return "run"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, op)
}
