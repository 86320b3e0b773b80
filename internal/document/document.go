package document

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"pdfrag/internal/domain"
)

// ErrUnsupported is returned for files that are neither PDF nor plain text.
var ErrUnsupported = errors.New("unsupported document type")

// Load reads a PDF page by page or a .txt file as a single page. The
// document ID is the file's base name, which is also the record source.
func Load(path string) (domain.Document, error) {
	var (
		pages []domain.Page
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err = loadPDF(path)
	case ".txt":
		pages, err = loadText(path)
	default:
		return domain.Document{}, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{ID: filepath.Base(path), Path: path, Pages: pages}, nil
}

func loadText(path string) ([]domain.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []domain.Page{{Number: 1, Text: string(data)}}, nil
}

// loadPDF extracts plain text per page. The parser panics on some damaged
// files, so a panic is turned into an error for that file.
func loadPDF(path string) (pages []domain.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("read %s: malformed pdf: %v", path, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read %s page %d: %w", path, i, err)
		}
		pages = append(pages, domain.Page{Number: i, Text: text})
	}
	return pages, nil
}

// Discover expands files, directories and glob patterns into the sorted set
// of .pdf and .txt files they name. Directories are walked recursively.
func Discover(patterns []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	add := func(p string) {
		if !supported(p) {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if matches == nil {
			matches = []string{pattern}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, err
			}
			if !info.IsDir() {
				add(m)
				continue
			}
			err = filepath.WalkDir(m, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					add(p)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt":
		return true
	}
	return false
}
