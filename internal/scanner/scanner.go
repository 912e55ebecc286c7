// Package scanner walks a project tree and classifies its files.
//
// Classification is table-driven: an ordered rule list maps relative
// paths to type tags, and a per-tag extractor registry pulls component
// names out of the content. The scan result is deterministic for an
// unchanged tree: files come back sorted by relative path with stable
// hashes.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// ScannedFile is one classified file from a scan.
type ScannedFile struct {
	AbsolutePath  string
	RelativePath  string
	FileName      string
	FileType      string
	ComponentName string
	Dependencies  []string
	LinesOfCode   int
	SizeBytes     int64
	Hash          string
	Content       []byte
	IsText        bool
}

// Scanner walks and classifies project trees.
type Scanner struct {
	rules      []Rule
	ignoreDirs map[string]bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithRules prepends extra rules ahead of the default table so they
// win classification.
func WithRules(rules []Rule) Option {
	return func(s *Scanner) {
		s.rules = append(append([]Rule{}, rules...), s.rules...)
	}
}

// WithIgnoreDirs adds directory names to the prune set.
func WithIgnoreDirs(names ...string) Option {
	return func(s *Scanner) {
		for _, n := range names {
			s.ignoreDirs[n] = true
		}
	}
}

// New builds a scanner with the default rule table and ignore set.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		rules:      DefaultRules(),
		ignoreDirs: DefaultIgnoreDirs(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classify returns the type tag the rule table assigns to a relative
// path, or "" when no rule matches.
func (s *Scanner) Classify(relPath string, content []byte) string {
	return classify(s.rules, relPath, content)
}

// Scan walks root and returns the classified files sorted by relative
// path. Files matching no rule are skipped. Content reading and
// hashing run on a bounded worker pool; cancellation via ctx stops
// the scan early.
func (s *Scanner) Scan(ctx context.Context, root string) ([]*ScannedFile, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root: %w", err)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && s.ignoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(paths)

	results := make([]*ScannedFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sf, err := s.scanFile(root, path)
			if err != nil {
				return err
			}
			results[i] = sf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Drop files no rule claimed, keeping path order.
	files := make([]*ScannedFile, 0, len(results))
	for _, sf := range results {
		if sf != nil {
			files = append(files, sf)
		}
	}
	return files, nil
}

func (s *Scanner) scanFile(root, path string) (*ScannedFile, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, fmt.Errorf("relativize %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}

	typeTag := classify(s.rules, rel, content)
	if typeTag == "" {
		return nil, nil
	}

	sum := sha256.Sum256(content)
	isText := utf8.Valid(content)

	sf := &ScannedFile{
		AbsolutePath:  path,
		RelativePath:  rel,
		FileName:      filepath.Base(rel),
		FileType:      typeTag,
		ComponentName: componentName(typeTag, rel, content, isText),
		SizeBytes:     int64(len(content)),
		Hash:          hex.EncodeToString(sum[:]),
		Content:       content,
		IsText:        isText,
	}
	if isText {
		sf.LinesOfCode = strings.Count(string(content), "\n")
		if e, ok := registry[typeTag]; ok {
			sf.Dependencies = e.ExtractDependencies(content)
		}
	}
	return sf, nil
}
