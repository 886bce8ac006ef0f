// utility/path.go
package utility

import (
	"os"
	"path/filepath"
)

// GetProjectRoot returns the directory holding the running executable.
func GetProjectRoot() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// ResolveNextToExecutable returns path unchanged when it is absolute and
// otherwise joins it onto the executable's directory, where build artifacts
// such as the XDP object are installed.
func ResolveNextToExecutable(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	root, err := GetProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, path), nil
}
