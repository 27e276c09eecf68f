package utils

import (
	"fmt"
	"strings"
)

const (
	PathSeparator = "/"
	RootDirectory = "/"

	storagePrefix = "user_files/"
)

// ChildDirectory returns the directory value held by the children of the
// node that occupies ownPath.
func ChildDirectory(ownPath string) string {
	if ownPath == "" || ownPath == RootDirectory {
		return RootDirectory
	}
	return strings.TrimSuffix(ownPath, PathSeparator) + PathSeparator
}

// FolderPath builds the own path of a folder named name inside directory.
// FolderPath("/", "docs") == "/docs", FolderPath("/docs/", "reports") == "/docs/reports".
func FolderPath(directory, name string) string {
	return ChildDirectory(directory) + name
}

// IsDescendantPath reports whether candidate is a directory value that sits
// somewhere below the folder at ancestor. A direct child directory equals
// ancestor + "/".
func IsDescendantPath(candidate, ancestor string) bool {
	prefix := ChildDirectory(ancestor)
	if prefix == RootDirectory {
		return strings.HasPrefix(candidate, RootDirectory)
	}
	return strings.HasPrefix(candidate, prefix)
}

// ParentOf splits a directory into the parent folder's own path. Root has no
// parent folder.
func ParentOf(directory string) (ownPath string, isRoot bool) {
	if directory == "" || directory == RootDirectory {
		return "", true
	}
	return strings.TrimSuffix(directory, PathSeparator), false
}

// StorageKey is the object-store key for a file. The object id keeps a purged
// or trashed file's blob from colliding with a later upload of the same name.
func StorageKey(uid, directory, objectID, name string) string {
	return fmt.Sprintf("%s%s%s%s_%s", storagePrefix, uid, ChildDirectory(directory), objectID, name)
}

func ValidateDirectory(directory string) error {
	if directory == "" {
		return fmt.Errorf("directory cannot be empty")
	}
	if !strings.HasPrefix(directory, PathSeparator) || !strings.HasSuffix(directory, PathSeparator) {
		return fmt.Errorf("directory must start and end with '/'")
	}
	if directory == RootDirectory {
		return nil
	}

	segments := strings.Split(strings.Trim(directory, PathSeparator), PathSeparator)
	for _, segment := range segments {
		if segment == "" {
			return fmt.Errorf("directory contains an empty segment")
		}
		if segment == "." || segment == ".." {
			return fmt.Errorf("directory cannot contain '.' or '..' segments")
		}
		if err := ValidateNodeName(segment); err != nil {
			return fmt.Errorf("invalid directory segment '%s': %w", segment, err)
		}
	}
	return nil
}
