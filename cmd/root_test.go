package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// execRoot runs a fresh command tree and returns stdout, stderr and the
// exit code.
func execRoot(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	t.Setenv("FOLIO_HOME", t.TempDir())
	cmd := newRootCommand()
	var outBuf, errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	code := execute(cmd, append([]string{"--log-level", "error"}, args...))
	return outBuf.String(), errBuf.String(), code
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestInitializeLogger(t *testing.T) {
	for _, level := range []string{"info", "debug", "invalid"} {
		cmd := &cobra.Command{}
		cmd.Flags().String("log-level", level, "")
		cmd.Flags().Bool("json", false, "")
		cmd.Flags().Bool("no-color", true, "")
		cmd.Flags().Bool("no-op", false, "")

		// This should not panic
		initializeLogger(cmd)
	}
}

func TestInitializeLogger_JSONOutput(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("log-level", "info", "")
	cmd.Flags().Bool("json", true, "")
	cmd.Flags().Bool("no-color", false, "")
	cmd.Flags().Bool("no-op", true, "")

	initializeLogger(cmd)
}

func TestRootVersionIsSet(t *testing.T) {
	if rootCmd.Version == "" {
		t.Error("rootCmd.Version should not be empty")
	}
}

func TestRootHelpGroupsCommands(t *testing.T) {
	out, _, code := execRoot(t, "--help")
	if code != 0 {
		t.Fatalf("help exited %d", code)
	}
	for _, want := range []string{"Publishing Commands:", "Content Commands:", "Support Commands:", "  run ", "  watch ", "  summary ", "  doctor "} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Publishing Commands:") > strings.Index(out, "Support Commands:") {
		t.Error("publishing group should come first")
	}
}

func TestSubcommandHelpIsDefault(t *testing.T) {
	out, _, code := execRoot(t, "run", "--help")
	if code != 0 {
		t.Fatalf("run --help exited %d", code)
	}
	if !strings.Contains(out, "--publisher-args") || strings.Contains(out, "Publishing Commands:") {
		t.Errorf("unexpected run help:\n%s", out)
	}
}

func TestUnknownCommandFails(t *testing.T) {
	_, _, code := execRoot(t, "frobnicate")
	if code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
}
