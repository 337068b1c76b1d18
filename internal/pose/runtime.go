package pose

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// ErrRuntimeUnavailable is returned when the Python pose service cannot be located.
var ErrRuntimeUnavailable = errors.New("pose runtime unavailable")

// Runtime is the resolved interpreter and service script used by MediaPipeDetector.
type Runtime struct {
	Python string
	Script string
}

var (
	runtimeOnce sync.Once
	runtimeVal  Runtime
	runtimeErr  error
)

// EnsureRuntime locates the pose service once per process. Later calls return the
// cached result regardless of their arguments; the runtime is never unloaded.
func EnsureRuntime(python, script string) (Runtime, error) {
	runtimeOnce.Do(func() {
		runtimeVal, runtimeErr = resolveRuntime(python, script)
	})
	return runtimeVal, runtimeErr
}

func resolveRuntime(python, script string) (Runtime, error) {
	if script == "" {
		script = findPoseScript()
	}
	if script == "" {
		return Runtime{}, fmt.Errorf("%w: pose_service.py not found", ErrRuntimeUnavailable)
	}
	if _, err := os.Stat(script); err != nil {
		return Runtime{}, fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}

	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}
	if _, err := exec.LookPath(python); err != nil {
		return Runtime{}, fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}

	return Runtime{Python: python, Script: script}, nil
}

func findPoseScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/pose_service.py",
		"../scripts/pose_service.py",
		filepath.Join(execDir, "scripts/pose_service.py"),
		filepath.Join(os.Getenv("HOME"), ".repcoach/scripts/pose_service.py"),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".repcoach/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
