package cli

import (
	"os"
	"testing"
)

func TestEnvOverridesFlagDefaults(t *testing.T) {
	t.Setenv("QUIZHOST_PORT", "9191")
	t.Setenv("QUIZHOST_VERBOSE", "true")

	cmd := newRootCmd()
	port, err := cmd.PersistentFlags().GetString("port")
	if err != nil {
		t.Fatalf("port flag: %v", err)
	}
	if port != "9191" {
		t.Fatalf("expected env port 9191, got %q", port)
	}
	verbose, _ := cmd.PersistentFlags().GetBool("verbose")
	if !verbose {
		t.Fatalf("expected env verbose to be applied")
	}
}

func TestRootRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"start", "migrate"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (%v)", name, sub, err)
		}
	}
}

func TestMigrateRequiresPostgres(t *testing.T) {
	cfgPath := t.TempDir() + "/config.yaml"
	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate", "--config", cfgPath})
	writeFile(t, cfgPath, "postgres:\n  url: \"\"\n")
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error without postgres url")
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
