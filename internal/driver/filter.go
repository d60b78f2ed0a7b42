package driver

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

func ignored(name string, ignoreList []string) bool {
	for _, pattern := range ignoreList {
		matched, err := filepath.Match(pattern, name)
		if err == nil && matched {
			return true
		}
	}

	return false
}

// localName reports whether name is a single path element that stays inside
// the directory it is joined to.
func localName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}

	return !strings.ContainsAny(name, `/\`) && filepath.IsLocal(name)
}

// remoteBase returns the last element of remotePath for use as a local name.
func remoteBase(remotePath string) (string, error) {
	name := path.Base(remotePath)
	if !localName(name) {
		return "", fmt.Errorf("%w: %s has no usable file name", ErrProtocol, remotePath)
	}

	return name, nil
}
