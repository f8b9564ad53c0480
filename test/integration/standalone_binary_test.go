package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestStandaloneBinaryVersionAndHelpWorkOutsideRepo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	if err != nil {
		t.Fatalf("go env GOMOD: %v", err)
	}
	goModPath := strings.TrimSpace(string(goModPathBytes))
	if goModPath == "" {
		t.Fatalf("go env GOMOD returned empty")
	}
	repoRoot := filepath.Dir(goModPath)

	buildDir := t.TempDir()
	binaryPath := filepath.Join(buildDir, "goalsmith")

	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/goalsmith")
	build.Dir = repoRoot
	build.Env = os.Environ()
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, string(out))
	}

	outside := t.TempDir()
	copiedBinary := filepath.Join(outside, "goalsmith")

	// Use a direct file copy to avoid relying on platform-specific tools.
	data, err := os.ReadFile(binaryPath)
	if err != nil {
		t.Fatalf("read built binary: %v", err)
	}
	if err := os.WriteFile(copiedBinary, data, 0o755); err != nil {
		t.Fatalf("write copied binary: %v", err)
	}

	version := exec.Command(copiedBinary, "version")
	version.Dir = outside
	if out, err := version.CombinedOutput(); err != nil {
		t.Fatalf("version failed: %v\n%s", err, string(out))
	}

	help := exec.Command(copiedBinary, "--help")
	help.Dir = outside
	if out, err := help.CombinedOutput(); err != nil {
		t.Fatalf("--help failed: %v\n%s", err, string(out))
	}

	// config show must work with nothing but defaults and the environment.
	show := exec.Command(copiedBinary, "config", "show")
	show.Dir = outside
	show.Env = append(os.Environ(),
		"XDG_CONFIG_HOME="+filepath.Join(outside, "config"),
		"XDG_DATA_HOME="+filepath.Join(outside, "data"),
		"GOALSMITH_AILINK_API_KEY=sk-integration",
	)
	out, err := show.Output()
	if err != nil {
		t.Fatalf("config show failed: %v\n%s", err, string(out))
	}
	if strings.Contains(string(out), "sk-integration") {
		t.Fatalf("config show leaked the api key:\n%s", string(out))
	}
	if !strings.Contains(string(out), "max_requests: 10") {
		t.Fatalf("config show missing server quota:\n%s", string(out))
	}
}
