package installer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestParseOSRelease(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		id      string
		version string
		pm      string
	}{
		{"ubuntu", "NAME=\"Ubuntu\"\nID=ubuntu\nVERSION_ID=\"22.04\"\n", "ubuntu", "22.04", "apt"},
		{"rocky", "ID=\"rocky\"\nVERSION_ID=\"9.3\"\n", "rocky", "9.3", "yum"},
		{"fedora", "ID=fedora\nVERSION_ID=40\n", "fedora", "40", "dnf"},
		{"arch", "ID=arch\n", "arch", "", "pacman"},
		{"tumbleweed", "ID=\"opensuse-tumbleweed\"\n", "opensuse-tumbleweed", "", "zypper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := parseOSRelease(tt.data)
			if err != nil {
				t.Fatal(err)
			}
			if info.ID != tt.id || info.VersionID != tt.version || info.PkgManager != tt.pm {
				t.Errorf("got %+v", info)
			}
		})
	}
}

func TestParseOSReleaseUnsupported(t *testing.T) {
	if _, err := parseOSRelease("ID=gentoo\n"); err == nil {
		t.Error("expected error for unsupported distribution")
	}
}

func TestDetectDistro(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := DetectDistro(fs); err == nil {
		t.Error("expected error without /etc/os-release")
	}

	afero.WriteFile(fs, "/etc/os-release", []byte("ID=debian\nVERSION_ID=\"12\"\n"), 0o644)
	info, err := DetectDistro(fs)
	if err != nil {
		t.Fatal(err)
	}
	if info.PkgManager != "apt" {
		t.Errorf("PkgManager = %q", info.PkgManager)
	}
}

func TestHint(t *testing.T) {
	tests := []struct {
		tool, pm, want string
	}{
		{"valgrind", "apt", "sudo apt-get install valgrind"},
		{"perf", "", "sudo apt-get install linux-tools-generic"},
		{"perf", "dnf", "sudo dnf install perf"},
		{"strace", "pacman", "sudo pacman -S strace"},
		{"perl", "zypper", "sudo zypper install perl"},
		{"flamegraph.pl", "apt", "git clone https://github.com/brendangregg/FlameGraph /opt/FlameGraph"},
		{"stackcollapse-perf.pl", "yum", "git clone https://github.com/brendangregg/FlameGraph /opt/FlameGraph"},
	}
	for _, tt := range tests {
		if got := Hint(tt.tool, tt.pm); got != tt.want {
			t.Errorf("Hint(%q, %q) = %q, want %q", tt.tool, tt.pm, got, tt.want)
		}
	}

	if got := Hint("bpftrace", "apt"); !strings.Contains(got, "perflens install") {
		t.Errorf("unknown tool hint = %q", got)
	}
}

func TestBuildPackageSteps(t *testing.T) {
	steps := BuildPackageSteps("6.8.0-45-generic")
	if len(steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(steps))
	}
	perf := steps[1]
	if perf.Step != "perf" {
		t.Fatalf("step[1] = %q", perf.Step)
	}
	if got := perf.Packages["apt"][0]; got != "linux-tools-6.8.0-45-generic" {
		t.Errorf("kernel-specific perf package = %q", got)
	}

	if got := BuildPackageSteps("")[1].Packages["apt"][0]; got != "linux-tools-generic" {
		t.Errorf("without kernel version, first perf package = %q", got)
	}
}

func TestInstallDryRun(t *testing.T) {
	var out bytes.Buffer
	inst := New(&out, true)
	inst.Fs = afero.NewMemMapFs()
	inst.run = func(name string, args, env []string) error {
		t.Fatalf("dry run executed %s %v", name, args)
		return nil
	}

	err := inst.install(&DistroInfo{ID: "ubuntu", VersionID: "24.04", PkgManager: "apt"}, "6.8.0-45-generic")
	if err != nil {
		t.Fatal(err)
	}

	text := out.String()
	for _, want := range []string{
		"Detected: ubuntu 24.04 (package manager: apt)",
		"[valgrind] Installing: valgrind",
		"(dry-run) Would run: apt install linux-tools-6.8.0-45-generic linux-tools-generic linux-tools-common",
		"(dry-run) Would clone to /opt/FlameGraph",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestInstallRunsEachPackage(t *testing.T) {
	var out bytes.Buffer
	inst := New(&out, false)
	inst.Fs = afero.NewMemMapFs()

	var commands []string
	inst.run = func(name string, args, env []string) error {
		cmd := name + " " + strings.Join(args, " ")
		commands = append(commands, cmd)
		if strings.Contains(cmd, "linux-tools-6.8.0-45-generic") {
			return errors.New("package not found")
		}
		return nil
	}

	if err := inst.install(&DistroInfo{ID: "ubuntu", PkgManager: "apt"}, "6.8.0-45-generic"); err != nil {
		t.Fatal(err)
	}

	if commands[0] != "apt-get update -qq" {
		t.Errorf("first command = %q", commands[0])
	}
	if last := commands[len(commands)-1]; last != "git clone "+FlameGraphRepo+" "+FlameGraphDir {
		t.Errorf("last command = %q", last)
	}
	if !strings.Contains(out.String(), "WARNING: failed to install linux-tools-6.8.0-45-generic") {
		t.Error("a failed package should be reported and skipped")
	}
	if !strings.Contains(out.String(), "OK: strace") {
		t.Error("later packages should still be installed")
	}
}

func TestInstallFlameGraphUpdatesExistingClone(t *testing.T) {
	inst := New(&bytes.Buffer{}, false)
	inst.Fs = afero.NewMemMapFs()
	inst.Fs.MkdirAll(FlameGraphDir, 0o755)

	var got string
	inst.run = func(name string, args, env []string) error {
		got = name + " " + strings.Join(args, " ")
		return nil
	}
	if err := inst.installFlameGraph(); err != nil {
		t.Fatal(err)
	}
	if got != "git -C /opt/FlameGraph pull" {
		t.Errorf("command = %q", got)
	}
}
