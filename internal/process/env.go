package process

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Environ returns the current environment with binDir prepended to PATH
// when the directory exists.
func Environ(binDir string) []string {
	env := os.Environ()
	if binDir == "" {
		return env
	}
	if fi, err := os.Stat(binDir); err != nil || !fi.IsDir() {
		return env
	}
	key := "PATH"
	for i, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.EqualFold(k, "PATH") {
			continue
		}
		if runtime.GOOS != "windows" && k != "PATH" {
			continue
		}
		env[i] = k + "=" + prependPath(binDir, v)
		return env
	}
	return append(env, key+"="+binDir)
}

func prependPath(dir, current string) string {
	if current == "" {
		return dir
	}
	for _, p := range filepath.SplitList(current) {
		if p == dir {
			return current
		}
	}
	return dir + string(os.PathListSeparator) + current
}
