package executor

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/afero"
)

// Executables resolved by the locator.
const (
	Valgrind   = "valgrind"
	Perf       = "perf"
	Strace     = "strace"
	Perl       = "perl"
	FlameGraph = "flamegraph.pl"
)

// FallbackBinaryPaths are searched after PATH, in order.
var FallbackBinaryPaths = []string{
	"/usr/local/bin",
	"/usr/bin",
	"/usr/sbin",
	"/usr/local/sbin",
	"/snap/bin",
	"/opt/FlameGraph",
}

// Locator resolves the path of an external executable.
// Search order: explicit override, bundled resource directory, PATH,
// then the fallback directories. Absence is a normal outcome.
type Locator struct {
	Fs        afero.Fs
	Overrides map[string]string // tool name -> explicit path (from config)
	Bundled   string            // directory shipped next to the perflens binary
	Fallbacks []string
	LookPath  func(string) (string, error)
}

// NewLocator creates a Locator over the real filesystem. Bundled resources
// are looked up in a "resources" directory next to the running executable;
// FlameGraph also gets ~/FlameGraph as a fallback.
func NewLocator(overrides map[string]string) *Locator {
	l := &Locator{
		Fs:        afero.NewOsFs(),
		Overrides: overrides,
		Fallbacks: append([]string(nil), FallbackBinaryPaths...),
		LookPath:  exec.LookPath,
	}
	if exe, err := os.Executable(); err == nil {
		l.Bundled = filepath.Join(filepath.Dir(exe), "resources")
	}
	if home, err := os.UserHomeDir(); err == nil {
		l.Fallbacks = append(l.Fallbacks, filepath.Join(home, "FlameGraph"))
	}
	return l
}

// Locate returns the first existing match for name.
func (l *Locator) Locate(name string) (string, bool) {
	if p, ok := l.Overrides[name]; ok && p != "" {
		if l.isFile(p) {
			return p, true
		}
	}

	if l.Bundled != "" {
		if p := filepath.Join(l.Bundled, name); l.isFile(p) {
			return p, true
		}
	}

	if l.LookPath != nil {
		if p, err := l.LookPath(name); err == nil {
			return p, true
		}
	}

	for _, dir := range l.Fallbacks {
		if p := filepath.Join(dir, name); l.isFile(p) {
			return p, true
		}
	}
	return "", false
}

// Exists reports whether path names a regular file.
func (l *Locator) Exists(path string) bool {
	return l.isFile(path)
}

func (l *Locator) isFile(path string) bool {
	info, err := l.Fs.Stat(path)
	return err == nil && !info.IsDir()
}
