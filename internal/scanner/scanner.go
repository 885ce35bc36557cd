package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Kind tells how a source file holds its messages.
type Kind int

const (
	// KindUnknown is any file the scanner does not pick up.
	KindUnknown Kind = iota
	// KindEML is a single RFC 5322 message.
	KindEML
	// KindMbox is an archive of concatenated messages.
	KindMbox
)

func (k Kind) String() string {
	switch k {
	case KindEML:
		return "eml"
	case KindMbox:
		return "mbox"
	default:
		return "unknown"
	}
}

// KindOf classifies path by its extension.
func KindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".eml":
		return KindEML
	case ".mbox", ".mbx":
		return KindMbox
	default:
		return KindUnknown
	}
}

// Scanner scans directories for .eml and .mbox files
type Scanner struct {
	rootPath string
}

// NewScanner creates a new scanner for the given root path
func NewScanner(rootPath string) *Scanner {
	return &Scanner{
		rootPath: rootPath,
	}
}

// GetRootPath returns the root path for resolving relative paths
func (s *Scanner) GetRootPath() string {
	return s.rootPath
}

// Resolve turns a path returned by Scan back into a filesystem path.
func (s *Scanner) Resolve(relPath string) string {
	return filepath.Join(s.rootPath, filepath.FromSlash(relPath))
}

// Scan recursively scans for message files and returns paths relative to rootPath,
// slash separated so they stay valid when the archive moves between systems.
func (s *Scanner) Scan() ([]string, error) {
	var files []string

	absRoot, err := filepath.Abs(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if d.IsDir() || KindOf(path) == KindUnknown {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		files = append(files, filepath.ToSlash(relPath))
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	return files, nil
}
