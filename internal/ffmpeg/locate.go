package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/kikiluvv/slidesync/pkg/util"
)

// locate finds a binary bundled under assets/ next to the running
// executable, falling back to PATH.
func locate(name string) (string, error) {
	if exePath, err := os.Executable(); err == nil {
		if p := bundledPath(filepath.Dir(exePath), name, runtime.GOOS); util.IsExecutable(p) {
			return p, nil
		}
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in assets or PATH: %w", name, err)
	}
	return p, nil
}

func bundledPath(exeDir, name, goos string) string {
	if goos == "windows" {
		name += ".exe"
	}
	return filepath.Join(exeDir, "assets", name)
}
