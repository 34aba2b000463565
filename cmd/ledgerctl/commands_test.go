package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/subcommands"
)

// execute runs cmd with args against a ledger file in dir and returns what
// it printed on stdout.
func execute(t *testing.T, cmd subcommands.Command, args ...string) (subcommands.ExitStatus, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = os.Stdout, os.Stderr })

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	status := cmd.Execute(context.Background(), fs)
	if status != subcommands.ExitSuccess {
		t.Logf("stderr: %s", errOut.String())
	}
	return status, out.String()
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STORE_PATH", filepath.Join(dir, "ledger.json"))
	t.Setenv("BACKUP_DIR", filepath.Join(dir, "backups"))
	t.Setenv("CLASSIFIER_RULES", "Groceries:rewe")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestImportExportBalance(t *testing.T) {
	dir := setupEnv(t)
	stmt := filepath.Join(dir, "jan.csv")
	err := os.WriteFile(stmt, []byte("Datum;Konto;Betrag;Name\n"+
		"01.01.24;Giro;100,00;ACME\n"+
		"02.01.24;Giro;-20,50;REWE\n"+
		"xx;Giro;1,00;broken\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	status, out := execute(t, &importCmd{}, "-v", stmt)
	if status != subcommands.ExitSuccess {
		t.Fatalf("import status = %v", status)
	}
	if !strings.Contains(out, "2 imported") || !strings.Contains(out, "line 4:") {
		t.Errorf("import output = %q", out)
	}

	status, out = execute(t, &balanceCmd{}, "Giro")
	if status != subcommands.ExitSuccess {
		t.Fatalf("balance status = %v", status)
	}
	if !strings.Contains(out, "79.50") {
		t.Errorf("balance output = %q, want 79.50", out)
	}

	exported := filepath.Join(dir, "out.json")
	if status, _ := execute(t, &exportCmd{}, "-o", exported); status != subcommands.ExitSuccess {
		t.Fatalf("export status = %v", status)
	}
	data, err := os.ReadFile(exported)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Groceries") {
		t.Errorf("exported snapshot lacks classified category: %s", data)
	}

	// Re-importing books nothing new.
	_, out = execute(t, &importCmd{}, stmt)
	if !strings.Contains(out, "0 imported, 2 already booked") {
		t.Errorf("second import output = %q", out)
	}

	status, out = execute(t, &restoreCmd{}, "-latest")
	if status != subcommands.ExitSuccess {
		t.Fatalf("restore -latest status = %v", status)
	}
	if !strings.Contains(out, "restored backup ledger-") {
		t.Errorf("restore output = %q", out)
	}

	status, out = execute(t, &resetCmd{}, "-yes")
	if status != subcommands.ExitSuccess {
		t.Fatalf("reset status = %v", status)
	}
	if !strings.Contains(out, "backup ledger-") || !strings.Contains(out, "2 transactions") {
		t.Errorf("reset output = %q", out)
	}

	_, out = execute(t, &balanceCmd{}, "Giro")
	if out != "" {
		t.Errorf("balance after reset printed %q, want unknown account", out)
	}
}

func TestUsageErrors(t *testing.T) {
	setupEnv(t)
	tests := []struct {
		cmd  subcommands.Command
		args []string
	}{
		{&importCmd{}, nil},
		{&restoreCmd{}, nil},
		{&restoreCmd{}, []string{"-latest", "file.json"}},
		{&reconcileCmd{}, nil},
		{&balanceCmd{}, nil},
		{&resetCmd{}, nil},
	}
	for _, tt := range tests {
		if status, _ := execute(t, tt.cmd, tt.args...); status != subcommands.ExitUsageError {
			t.Errorf("%s %v: status = %v, want usage error", tt.cmd.Name(), tt.args, status)
		}
	}

	if status, _ := execute(t, &reconcileCmd{}, "-strategy", "theirs", "x.json"); status != subcommands.ExitFailure {
		t.Errorf("unknown strategy: status = %v, want failure", status)
	}
}
