// Package pathutil canonicalizes and type-checks filesystem paths. It is
// the Go counterpart of original_source/src/paths.rs: canonicalization
// does not prevent TOCTOU bugs, the caller bears race responsibility.
package pathutil

import (
	"os"
	"path/filepath"

	"github.com/banksean/orchestra/orcherr"
)

// AcquirePath canonicalizes path and returns its absolute, symlink-resolved
// form. It fails if nothing exists at path.
func AcquirePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindPath, err, "resolve absolute path "+path)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", orcherr.Wrap(orcherr.KindPath, err, "path does not exist: "+path)
		}
		return "", orcherr.Wrap(orcherr.KindPath, err, "canonicalize path "+path)
	}
	return resolved, nil
}

// AcquireFilePath is AcquirePath, additionally requiring the resolved
// entry to be a regular file.
func AcquireFilePath(path string) (string, error) {
	resolved, err := AcquirePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindPath, err, "stat "+resolved)
	}
	if info.IsDir() {
		return "", orcherr.New(orcherr.KindPath, "path is a directory, not a file: "+resolved)
	}
	if !info.Mode().IsRegular() {
		return "", orcherr.New(orcherr.KindPath, "path is not a regular file: "+resolved)
	}
	return resolved, nil
}

// AcquireDirPath is AcquirePath, additionally requiring the resolved
// entry to be a directory.
func AcquireDirPath(path string) (string, error) {
	resolved, err := AcquirePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindPath, err, "stat "+resolved)
	}
	if !info.IsDir() {
		return "", orcherr.New(orcherr.KindPath, "path is not a directory: "+resolved)
	}
	return resolved, nil
}
