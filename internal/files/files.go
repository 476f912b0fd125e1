// Package files maps documents to output paths and writes rendered
// artifacts, skipping writes that would not change anything.
package files

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog/log"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

const (
	LayoutExt  = ".xml"
	WrapperExt = ".as"
)

var ErrNoOutputDir = errors.New("files: output directory not configured")

// Layout is where rendered artifacts go.
type Layout struct {
	LayoutsDir  string
	WrappersDir string
}

// Summary describes one WriteFile call.
type Summary struct {
	Path    string
	Created bool
	Changed bool
	Added   int
	Removed int
}

type Manager struct {
	layout Layout
	mu     sync.Mutex
}

func NewManager(layout Layout) *Manager {
	return &Manager{layout: layout}
}

// LayoutName derives the artifact base name from a document file path:
// the base name without extension, reduced to identifier characters.
// Unsaved documents become Untitled-<id>.
func LayoutName(file string, id int) string {
	base := filepath.Base(strings.TrimSpace(file))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range base {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return fmt.Sprintf("Untitled-%d", id)
	}
	return b.String()
}

func (m *Manager) LayoutPath(name string) (string, error) {
	if strings.TrimSpace(m.layout.LayoutsDir) == "" {
		return "", fmt.Errorf("%w: layouts", ErrNoOutputDir)
	}
	return filepath.Join(m.layout.LayoutsDir, name+LayoutExt), nil
}

func (m *Manager) WrapperPath(name string) (string, error) {
	if strings.TrimSpace(m.layout.WrappersDir) == "" {
		return "", fmt.Errorf("%w: wrappers", ErrNoOutputDir)
	}
	return filepath.Join(m.layout.WrappersDir, name+"Wrapper"+WrapperExt), nil
}

// WriteFile writes text to path, creating parent directories. Identical
// content is left untouched.
func (m *Manager) WriteFile(path, text string) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := Summary{Path: path}
	prev, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		sum.Created = true
	case err != nil:
		return sum, fmt.Errorf("files: read %s: %w", path, err)
	case bytes.Equal(prev, []byte(text)):
		log.Debug().Str("path", path).Msg("files.WriteFile unchanged")
		return sum, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return sum, fmt.Errorf("files: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return sum, fmt.Errorf("files: write %s: %w", path, err)
	}
	sum.Changed = true
	sum.Added, sum.Removed = lineDelta(string(prev), text)
	log.Info().
		Str("path", path).
		Bool("created", sum.Created).
		Int("lines_added", sum.Added).
		Int("lines_removed", sum.Removed).
		Msg("files.WriteFile wrote")
	return sum, nil
}

// lineDelta counts inserted and deleted lines between two texts.
func lineDelta(from, to string) (added, removed int) {
	dmp := diffpatch.New()
	a, b, lines := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if !strings.HasSuffix(d.Text, "\n") {
			n++
		}
		switch d.Type {
		case diffpatch.DiffInsert:
			added += n
		case diffpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}
