package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// pathMode distinguishes read resolution (path must already exist) from
// write resolution (a not-yet-created file is fine).
type pathMode int

const (
	pathModeRead pathMode = iota
	pathModeWrite
)

// resolveAndValidatePath canonicalizes userPath against the process CWD
// and checks it against policy.AllowedRoots.
func resolveAndValidatePath(userPath string, policy Policy, mode pathMode) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve cwd: %w", err)
	}
	absolute := userPath
	if !filepath.IsAbs(absolute) {
		absolute = filepath.Join(cwd, absolute)
	}

	canonical, err := canonicalizeBestEffort(absolute)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize path %q: %w", absolute, err)
	}

	allowed, err := isPathAllowed(canonical, policy)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", fmt.Errorf("path %q is outside allowed roots", canonical)
	}

	if mode == pathModeRead {
		if _, err := os.Stat(canonical); err != nil {
			return "", fmt.Errorf("path %q does not exist", canonical)
		}
	}

	return canonical, nil
}

func isPathAllowed(path string, policy Policy) (bool, error) {
	if len(policy.AllowedRoots) == 0 {
		return true, nil
	}
	for _, root := range policy.AllowedRoots {
		canonicalRoot, err := canonicalizeBestEffort(root)
		if err != nil {
			return false, fmt.Errorf("invalid allowed root %q: %w", root, err)
		}
		if path == canonicalRoot || strings.HasPrefix(path, canonicalRoot+string(filepath.Separator)) {
			return true, nil
		}
	}
	return false, nil
}

// canonicalizeBestEffort resolves the longest existing ancestor of path
// and re-appends the missing trailing components verbatim: symlinks in
// existing ancestors are resolved, but a path pointing to a
// not-yet-created file still resolves successfully.
func canonicalizeBestEffort(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return filepath.EvalSymlinks(path)
	}

	var missingSuffix []string
	cursor := path
	for {
		if _, err := os.Stat(cursor); err == nil {
			break
		}
		parent := filepath.Dir(cursor)
		if parent == cursor {
			return "", fmt.Errorf("no existing ancestor for path %q", path)
		}
		missingSuffix = append(missingSuffix, filepath.Base(cursor))
		cursor = parent
	}

	canonical, err := filepath.EvalSymlinks(cursor)
	if err != nil {
		return "", err
	}
	for i := len(missingSuffix) - 1; i >= 0; i-- {
		canonical = filepath.Join(canonical, missingSuffix[i])
	}
	return canonical, nil
}
