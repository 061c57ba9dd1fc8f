// Package installer handles detection and installation of the external
// analysis tools on various Linux distributions.
package installer

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/afero"
)

// FlameGraphRepo is cloned into FlameGraphDir by the installer.
const (
	FlameGraphRepo = "https://github.com/brendangregg/FlameGraph"
	FlameGraphDir  = "/opt/FlameGraph"
)

// Installer detects the Linux distribution and installs the tool packages.
type Installer struct {
	DryRun bool
	Out    io.Writer
	Fs     afero.Fs

	// run executes a command; tests replace it.
	run func(name string, args []string, env []string) error
}

// DistroInfo holds OS and package manager details.
type DistroInfo struct {
	ID         string // "ubuntu", "centos", "fedora", "arch"
	VersionID  string // "22.04", "8", etc.
	PkgManager string // "apt", "yum", "dnf", "pacman", "zypper"
}

// PackageSet defines packages for a step.
type PackageSet struct {
	Step     string
	Packages map[string][]string // pkg manager → package names
}

// New returns an Installer writing progress to out.
func New(out io.Writer, dryRun bool) *Installer {
	return &Installer{DryRun: dryRun, Out: out, Fs: afero.NewOsFs(), run: runCommand}
}

// Run performs the installation.
func (inst *Installer) Run() error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("perflens install is only supported on Linux (current: %s)", runtime.GOOS)
	}

	if !inst.DryRun && os.Geteuid() != 0 {
		return fmt.Errorf("perflens install requires root privileges (use sudo)")
	}

	distro, err := DetectDistro(inst.Fs)
	if err != nil {
		return fmt.Errorf("detect distro: %w", err)
	}
	return inst.install(distro, KernelVersion())
}

func (inst *Installer) install(distro *DistroInfo, kernel string) error {
	fmt.Fprintf(inst.Out, "Detected: %s %s (package manager: %s)\n", distro.ID, distro.VersionID, distro.PkgManager)
	if kernel != "" {
		fmt.Fprintf(inst.Out, "Kernel: %s\n", kernel)
	}

	if !inst.DryRun {
		fmt.Fprintln(inst.Out, "\nUpdating package index...")
		if err := inst.updatePackageIndex(distro.PkgManager); err != nil {
			fmt.Fprintf(inst.Out, "  WARNING: %v\n", err)
		}
	}

	for _, step := range BuildPackageSteps(kernel) {
		pkgs := step.Packages[distro.PkgManager]
		if len(pkgs) == 0 {
			continue
		}

		fmt.Fprintf(inst.Out, "\n[%s] Installing: %s\n", step.Step, strings.Join(pkgs, " "))

		if inst.DryRun {
			fmt.Fprintf(inst.Out, "  (dry-run) Would run: %s install %s\n", distro.PkgManager, strings.Join(pkgs, " "))
			continue
		}

		// One at a time so a missing kernel-specific package doesn't block the rest.
		for _, pkg := range pkgs {
			if err := inst.installPackage(distro.PkgManager, pkg); err != nil {
				fmt.Fprintf(inst.Out, "  WARNING: failed to install %s: %v\n", pkg, err)
			} else {
				fmt.Fprintf(inst.Out, "  OK: %s\n", pkg)
			}
		}
	}

	fmt.Fprintln(inst.Out, "\n[flamegraph] Cloning FlameGraph tools...")
	if inst.DryRun {
		fmt.Fprintf(inst.Out, "  (dry-run) Would clone to %s\n", FlameGraphDir)
	} else if err := inst.installFlameGraph(); err != nil {
		fmt.Fprintf(inst.Out, "  WARNING: %v\n", err)
	}

	fmt.Fprintln(inst.Out, "\nInstallation complete. Run 'perflens check' to verify.")
	return nil
}

// DetectDistro reads /etc/os-release to identify the distribution.
func DetectDistro(fs afero.Fs) (*DistroInfo, error) {
	data, err := afero.ReadFile(fs, "/etc/os-release")
	if err != nil {
		return nil, fmt.Errorf("read /etc/os-release: %w", err)
	}
	return parseOSRelease(string(data))
}

func parseOSRelease(data string) (*DistroInfo, error) {
	info := &DistroInfo{}
	for _, line := range strings.Split(data, "\n") {
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		val := strings.Trim(parts[1], "\"")
		switch parts[0] {
		case "ID":
			info.ID = val
		case "VERSION_ID":
			info.VersionID = val
		}
	}

	info.PkgManager = packageManager(info.ID)
	if info.PkgManager == "" {
		return nil, fmt.Errorf("unsupported distribution: %s", info.ID)
	}
	return info, nil
}

func packageManager(id string) string {
	switch id {
	case "ubuntu", "debian", "linuxmint", "pop":
		return "apt"
	case "centos", "rhel", "rocky", "almalinux", "ol":
		return "yum"
	case "fedora":
		return "dnf"
	case "arch", "manjaro":
		return "pacman"
	case "opensuse", "opensuse-leap", "opensuse-tumbleweed", "sles":
		return "zypper"
	}
	return ""
}

// KernelVersion returns the running kernel version, empty if unknown.
func KernelVersion() string {
	out, err := exec.Command("uname", "-r").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// BuildPackageSteps returns the ordered list of package installations.
func BuildPackageSteps(kernelVer string) []PackageSet {
	// perf on apt ships per kernel; fall back to the generic meta-package.
	var aptPerf []string
	if kernelVer != "" {
		aptPerf = append(aptPerf, "linux-tools-"+kernelVer)
	}
	aptPerf = append(aptPerf, "linux-tools-generic", "linux-tools-common")

	return []PackageSet{
		{
			Step: "valgrind",
			Packages: map[string][]string{
				"apt":    {"valgrind"},
				"yum":    {"valgrind"},
				"dnf":    {"valgrind"},
				"pacman": {"valgrind"},
				"zypper": {"valgrind"},
			},
		},
		{
			Step: "perf",
			Packages: map[string][]string{
				"apt":    aptPerf,
				"yum":    {"perf"},
				"dnf":    {"perf"},
				"pacman": {"perf"},
				"zypper": {"perf"},
			},
		},
		{
			Step: "strace",
			Packages: map[string][]string{
				"apt":    {"strace"},
				"yum":    {"strace"},
				"dnf":    {"strace"},
				"pacman": {"strace"},
				"zypper": {"strace"},
			},
		},
		{
			Step: "flamegraph-deps",
			Packages: map[string][]string{
				"apt":    {"perl", "git"},
				"yum":    {"perl", "git"},
				"dnf":    {"perl", "git"},
				"pacman": {"perl", "git"},
				"zypper": {"perl", "git"},
			},
		},
	}
}

func (inst *Installer) updatePackageIndex(pkgManager string) error {
	switch pkgManager {
	case "apt":
		return inst.run("apt-get", []string{"update", "-qq"}, []string{"DEBIAN_FRONTEND=noninteractive"})
	case "yum":
		return inst.run("yum", []string{"makecache", "-q"}, nil)
	case "dnf":
		return inst.run("dnf", []string{"makecache", "-q"}, nil)
	case "pacman":
		return inst.run("pacman", []string{"-Sy"}, nil)
	}
	return nil
}

func (inst *Installer) installPackage(pkgManager, pkg string) error {
	switch pkgManager {
	case "apt":
		return inst.run("apt-get", []string{"install", "-y", "-qq", pkg}, []string{"DEBIAN_FRONTEND=noninteractive"})
	case "yum", "dnf", "zypper":
		return inst.run(pkgManager, []string{"install", "-y", pkg}, nil)
	case "pacman":
		return inst.run("pacman", []string{"-S", "--noconfirm", pkg}, nil)
	}
	return fmt.Errorf("unsupported package manager: %s", pkgManager)
}

func (inst *Installer) installFlameGraph() error {
	if _, err := inst.Fs.Stat(FlameGraphDir); err == nil {
		return inst.run("git", []string{"-C", FlameGraphDir, "pull"}, nil)
	}
	return inst.run("git", []string{"clone", FlameGraphRepo, FlameGraphDir}, nil)
}

func runCommand(name string, args []string, env []string) error {
	cmd := exec.Command(name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
