package access

import (
	"os/user"
	"path/filepath"
	"strings"
)

// Checker decides whether identity may write to path.
type Checker interface {
	HasAccess(path, identity string) bool
}

// RootChecker confines every identity to a root directory. Root may contain
// the {user} placeholder; an empty Root means the identity's home directory.
type RootChecker struct {
	Root string
}

func (c RootChecker) HasAccess(path, identity string) bool {
	if identity == "" || !filepath.IsAbs(path) {
		return false
	}

	root, err := c.rootFor(identity)
	if err != nil || root == "" {
		return false
	}

	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c RootChecker) rootFor(identity string) (string, error) {
	if c.Root != "" {
		return filepath.Clean(strings.ReplaceAll(c.Root, "{user}", identity)), nil
	}

	u, err := user.Lookup(identity)
	if err != nil {
		return "", err
	}

	return filepath.Clean(u.HomeDir), nil
}

// AllowAll grants access to every path.
type AllowAll struct{}

func (AllowAll) HasAccess(string, string) bool {
	return true
}
