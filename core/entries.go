package core

import (
	"io/fs"
	"iter"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type Entry struct {
	Path     string
	Relative string // slash-separated, relative to the walk root
	Depth    int
	IsDir    bool
	DirEntry fs.DirEntry
}

type ListOption func(*listOptions)

type listOptions struct {
	maxDepth int
}

// MaxDepth stops descent below depth; immediate children of the root have depth 1.
func MaxDepth(depth int) ListOption {
	return func(options *listOptions) { options.maxDepth = depth }
}

// ListEntriesMatching lazily walks root in lexical order, yielding entries
// accepted by match (nil accepts everything). The root itself is never
// yielded. Walk errors are yielded alongside the offending path and the walk
// continues. Every range over the result starts a fresh walk.
func ListEntriesMatching(root string, match func(Entry) bool, options ...ListOption) iter.Seq2[Entry, error] {
	config := listOptions{maxDepth: -1}
	for _, option := range options {
		option(&config)
	}
	root = filepath.Clean(root)

	return func(yield func(Entry, error) bool) {
		_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				if !yield(Entry{Path: path}, err) {
					return filepath.SkipAll
				}
				return nil
			}
			if path == root {
				return nil
			}
			relative, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			relative = filepath.ToSlash(relative)
			candidate := Entry{
				Path:     path,
				Relative: relative,
				Depth:    strings.Count(relative, "/") + 1,
				IsDir:    entry.IsDir(),
				DirEntry: entry,
			}
			if config.maxDepth >= 0 && candidate.Depth > config.maxDepth {
				return skip(candidate)
			}
			if match == nil || match(candidate) {
				if !yield(candidate, nil) {
					return filepath.SkipAll
				}
			}
			if config.maxDepth >= 0 && candidate.Depth >= config.maxDepth {
				return skip(candidate)
			}
			return nil
		})
	}
}

func skip(entry Entry) error {
	if entry.IsDir {
		return filepath.SkipDir
	}
	return nil
}

// MatchingGlob accepts entries whose relative path matches a doublestar pattern.
func MatchingGlob(pattern string) func(Entry) bool {
	return func(entry Entry) bool {
		matched, err := doublestar.Match(pattern, entry.Relative)
		return err == nil && matched
	}
}

func FilesOnly(match func(Entry) bool) func(Entry) bool {
	return func(entry Entry) bool {
		return !entry.IsDir && (match == nil || match(entry))
	}
}
