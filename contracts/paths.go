package contracts

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

const (
	ContainerExtension = ".ANTIKINST"
	LegacyExtension    = ".tar"
	BackupDirectory    = "backup"
	AppPrefix          = "app/"
	IconPrefix         = "icon/"
	FallbackIconName   = "icon.ANTIK"
)

// NormalizeContainerPath gives path the canonical container extension. A
// case-insensitive match is recased; anything else gets the extension appended.
func NormalizeContainerPath(path string) string {
	extension := filepath.Ext(path)
	if strings.EqualFold(extension, ContainerExtension) {
		return strings.TrimSuffix(path, extension) + ContainerExtension
	}
	return path + ContainerExtension
}

func IsContainerName(name string) bool {
	extension := filepath.Ext(name)
	return strings.EqualFold(extension, ContainerExtension) || strings.EqualFold(extension, LegacyExtension)
}

// CleanEntryName converts an archive entry name to a slash-separated relative
// path, or reports that it cannot be placed under any root.
func CleanEntryName(name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	if slashed == "" || strings.HasPrefix(slashed, "/") || filepath.VolumeName(name) != "" || hasDriveLetter(slashed) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	cleaned := path.Clean(slashed)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	return cleaned, nil
}

// SecureJoin joins an archive entry name onto root, refusing any result that
// would land outside root.
func SecureJoin(root, name string) (string, error) {
	cleaned, err := CleanEntryName(name)
	if err != nil {
		return "", err
	}
	root = filepath.Clean(root)
	joined := filepath.Join(root, filepath.FromSlash(cleaned))
	if !Contains(root, joined) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	return joined, nil
}

// Contains reports whether candidate is root or lies beneath it.
func Contains(root, candidate string) bool {
	relative, err := filepath.Rel(filepath.Clean(root), filepath.Clean(candidate))
	if err != nil {
		return false
	}
	return relative == "." || (relative != ".." && !strings.HasPrefix(relative, ".."+string(filepath.Separator)))
}

func hasDriveLetter(name string) bool {
	return len(name) >= 2 && name[1] == ':' &&
		((name[0] >= 'a' && name[0] <= 'z') || (name[0] >= 'A' && name[0] <= 'Z'))
}
