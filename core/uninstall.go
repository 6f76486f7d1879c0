package core

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
)

// RemoveTree deletes root and everything beneath it. When the bulk delete is
// blocked it falls back to deleting leaf by leaf (files, then directories
// deepest first, then root) and reports what could not be removed.
func RemoveTree(files contracts.Deleter, root string, logger *zap.Logger) contracts.DeletionReport {
	return removeTree(files, filepath.Clean(root), false, logger)
}

// ClearTree is RemoveTree that leaves root itself in place.
func ClearTree(files contracts.Deleter, root string, logger *zap.Logger) contracts.DeletionReport {
	return removeTree(files, filepath.Clean(root), true, logger)
}

func removeTree(files contracts.Deleter, root string, keepRoot bool, logger *zap.Logger) (report contracts.DeletionReport) {
	report.Root = root
	entries := inventory(root)

	if !keepRoot {
		if err := files.DeleteAll(root); err == nil {
			report.Removed = len(entries) + 1
			return report
		}
	} else if children := topLevel(entries); bulkDelete(files, children) {
		report.Removed = len(entries)
		return report
	}

	logger.Warn("Bulk delete blocked; removing entries one at a time.", zap.String("root", root))
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return !entries[i].IsDir
		}
		return entries[i].Depth > entries[j].Depth
	})
	for _, entry := range entries {
		tally(&report, files.Delete(entry.Path), entry.Path, logger)
	}
	if !keepRoot {
		tally(&report, files.Delete(root), root, logger)
	}
	return report
}

func inventory(root string) (entries []Entry) {
	for entry, err := range ListEntriesMatching(root, nil) {
		if err == nil {
			entries = append(entries, entry)
		}
	}
	return entries
}

func topLevel(entries []Entry) (children []Entry) {
	for _, entry := range entries {
		if entry.Depth == 1 {
			children = append(children, entry)
		}
	}
	return children
}

func bulkDelete(files contracts.Deleter, entries []Entry) bool {
	succeeded := true
	for _, entry := range entries {
		if err := files.DeleteAll(entry.Path); err != nil {
			succeeded = false
		}
	}
	return succeeded
}

func tally(report *contracts.DeletionReport, err error, path string, logger *zap.Logger) {
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		report.Removed++
		return
	}
	logger.Warn("Unable to delete.", zap.String("path", path), zap.Error(err))
	report.Remaining++
	report.Failures = append(report.Failures, path)
}
