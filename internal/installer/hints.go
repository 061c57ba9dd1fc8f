package installer

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// packageFor maps an executable to its package name per package manager.
var packageFor = map[string]map[string]string{
	"valgrind": {"apt": "valgrind", "yum": "valgrind", "dnf": "valgrind", "pacman": "valgrind", "zypper": "valgrind"},
	"perf":     {"apt": "linux-tools-generic", "yum": "perf", "dnf": "perf", "pacman": "perf", "zypper": "perf"},
	"strace":   {"apt": "strace", "yum": "strace", "dnf": "strace", "pacman": "strace", "zypper": "strace"},
	"perl":     {"apt": "perl", "yum": "perl", "dnf": "perl", "pacman": "perl", "zypper": "perl"},
}

// HintFor returns an install instruction for tool on the running distribution.
func HintFor(tool string) string {
	pm := ""
	if d, err := DetectDistro(afero.NewOsFs()); err == nil {
		pm = d.PkgManager
	}
	return Hint(tool, pm)
}

// Hint returns an install instruction for tool with the given package
// manager. An empty package manager yields the apt form, which covers the
// most common hosts.
func Hint(tool, pkgManager string) string {
	if tool == "flamegraph.pl" || strings.HasPrefix(tool, "stackcollapse") {
		return fmt.Sprintf("git clone %s %s", FlameGraphRepo, FlameGraphDir)
	}

	if pkgManager == "" {
		pkgManager = "apt"
	}
	pkg, ok := packageFor[tool][pkgManager]
	if !ok {
		return fmt.Sprintf("install %s with your package manager, or run 'sudo perflens install'", tool)
	}

	switch pkgManager {
	case "apt":
		return "sudo apt-get install " + pkg
	case "pacman":
		return "sudo pacman -S " + pkg
	default:
		return fmt.Sprintf("sudo %s install %s", pkgManager, pkg)
	}
}
