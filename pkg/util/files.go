package util

import (
	"fmt"
	"os"
	"runtime"
)

// EnsureDir creates path and its parents. It fails if path exists and is
// not a directory.
func EnsureDir(path string) error {
	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		return fmt.Errorf("%s exists and is not a directory", path)
	}
	return os.MkdirAll(path, 0o755)
}

// IsExecutable reports whether path is a regular file that can be run.
// Windows has no exec bit, so any regular file qualifies there.
func IsExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	return runtime.GOOS == "windows" || fi.Mode().Perm()&0o111 != 0
}
