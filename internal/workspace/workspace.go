// Package workspace provides scoped read/write access to the project
// tree. Every operation is confined to the workspace root and bounded
// by the run's scope: file count, lines per file, and allowed file
// types.
package workspace

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ebarroso/promptforge/internal/pipeline"
)

// skipDirs are directory names never scanned, regardless of scope.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".idea":        true,
	"__pycache__":  true,
}

// FileInfo describes one workspace file, path relative to the root.
type FileInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Match is a single grep hit.
type Match struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Edit is a planned file change: full replacement or append.
type Edit struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append,omitempty"`
}

// ApplyResult reports the outcome of one edit.
type ApplyResult struct {
	Path    string `json:"path"`
	Written int    `json:"written"` // bytes
	Created bool   `json:"created"`
}

// Workspace is a rooted filesystem view.
type Workspace struct {
	root string
}

// New creates a workspace rooted at dir. The directory must exist.
func New(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// List walks the tree and returns up to scope.MaxFiles files whose
// type the scope allows, in walk order.
func (w *Workspace) List(scope pipeline.Scope) ([]FileInfo, error) {
	var out []FileInfo
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || (d.Name() != "." && strings.HasPrefix(d.Name(), ".") && path != w.root) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !Allowed(rel, scope.AllowedFileTypes) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, FileInfo{Path: rel, Size: info.Size()})
		if scope.MaxFiles > 0 && len(out) >= scope.MaxFiles {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing workspace: %w", err)
	}
	return out, nil
}

// Read returns up to maxLines of the file at rel (relative to the
// root), plus the total number of lines read before truncation.
func (w *Workspace) Read(rel string, maxLines int) (string, int, error) {
	abs, err := w.resolve(rel)
	if err != nil {
		return "", 0, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	var sb strings.Builder
	lines := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines++
		if maxLines <= 0 || lines <= maxLines {
			sb.WriteString(scanner.Text())
			sb.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return "", 0, fmt.Errorf("reading %s: %w", rel, err)
	}
	return sb.String(), lines, nil
}

// Grep scans scope-allowed files for lines containing any of the terms
// (case-insensitive). Results are bounded by the scope's file and line
// limits.
func (w *Workspace) Grep(terms []string, scope pipeline.Scope) ([]Match, error) {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	files, err := w.List(scope)
	if err != nil {
		return nil, err
	}

	var out []Match
	for _, fi := range files {
		abs, err := w.resolve(fi.Path)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(abs)
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if scope.MaxLinesPerFile > 0 && lineNo > scope.MaxLinesPerFile {
				break
			}
			line := scanner.Text()
			lower := strings.ToLower(line)
			for _, term := range lowered {
				if strings.Contains(lower, term) {
					out = append(out, Match{Path: fi.Path, Line: lineNo, Text: strings.TrimSpace(line)})
					break
				}
			}
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", fi.Path, err)
		}
	}
	return out, nil
}

// Apply writes the given edits, honoring the scope: at most MaxFiles
// edits, each to an allowed file type. Edits beyond the limit are
// dropped, not failed — callers see what was written in the results.
func (w *Workspace) Apply(edits []Edit, scope pipeline.Scope) ([]ApplyResult, error) {
	var out []ApplyResult
	for _, e := range edits {
		if scope.MaxFiles > 0 && len(out) >= scope.MaxFiles {
			break
		}
		rel := filepath.ToSlash(filepath.Clean(e.Path))
		if !Allowed(rel, scope.AllowedFileTypes) {
			continue
		}
		abs, err := w.resolve(rel)
		if err != nil {
			return out, err
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return out, fmt.Errorf("creating directory for %s: %w", rel, err)
		}

		_, statErr := os.Stat(abs)
		created := os.IsNotExist(statErr)

		flags := os.O_CREATE | os.O_WRONLY
		if e.Append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(abs, flags, 0o644)
		if err != nil {
			return out, err
		}
		n, err := f.WriteString(e.Content)
		closeErr := f.Close()
		if err != nil {
			return out, fmt.Errorf("writing %s: %w", rel, err)
		}
		if closeErr != nil {
			return out, fmt.Errorf("closing %s: %w", rel, closeErr)
		}
		out = append(out, ApplyResult{Path: rel, Written: n, Created: created})
	}
	return out, nil
}

// resolve joins rel onto the root and rejects escapes.
func (w *Workspace) resolve(rel string) (string, error) {
	abs := filepath.Join(w.root, filepath.FromSlash(rel))
	r, err := filepath.Rel(w.root, abs)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return abs, nil
}

// Allowed reports whether a slash-separated relative path matches the
// allowed file types. Types may be bare extensions (".go") or
// doublestar patterns ("**/*_test.go"). An empty list allows
// everything.
func Allowed(rel string, types []string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.ContainsAny(t, "*?[{") {
			if ok, err := doublestar.Match(t, rel); err == nil && ok {
				return true
			}
			continue
		}
		if strings.HasPrefix(t, ".") && strings.HasSuffix(rel, t) {
			return true
		}
	}
	return false
}
