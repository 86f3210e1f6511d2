package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kiln/internal/testsupport"
)

// runKiln executes one CLI invocation against the given working
// directory and config file, capturing stdout.
func runKiln(t *testing.T, configPath, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--config", configPath, "-C", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "kiln.toml")
	content := fmt.Sprintf("[paths]\nlog_dir = %q\n\n[logging]\nformat = \"json\"\nlevel = \"debug\"\n",
		filepath.Join(dir, "logs"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEndToEndPipeline(t *testing.T) {
	cfgPath := writeTestConfig(t)
	dir := t.TempDir()

	out, err := runKiln(t, cfgPath, dir, "init")
	if err != nil {
		t.Fatalf("init failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Initialized kiln project") {
		t.Fatalf("init output = %q", out)
	}

	testsupport.WriteTree(t, dir, map[string]string{
		"textures/a.png":  "png bytes",
		"models/hero.ref": "textures/a.png\n",
	})

	if out, err := runKiln(t, cfgPath, dir, "add", "textures", "models"); err != nil {
		t.Fatalf("add failed: %v\n%s", err, out)
	}
	if out, err := runKiln(t, cfgPath, dir, "spec", "enable", "rawspec"); err != nil {
		t.Fatalf("spec enable failed: %v\n%s", err, out)
	}

	out, err = runKiln(t, cfgPath, dir, "cook")
	if err != nil {
		t.Fatalf("cook failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Cooked 3, skipped 0, failed 0") {
		t.Fatalf("cook output = %q", out)
	}

	// A second cook has nothing to do on the primary pass; the
	// resolution pass always revisits reference lists.
	out, err = runKiln(t, cfgPath, dir, "cook")
	if err != nil {
		t.Fatalf("recook failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Cooked 1, skipped 2, failed 0") {
		t.Fatalf("recook output = %q", out)
	}

	if out, err := runKiln(t, cfgPath, dir, "package"); err != nil {
		t.Fatalf("package failed: %v\n%s", err, out)
	}
	pak := filepath.Join(dir, "out", "rawspec", filepath.Base(dir)+".kpak")
	if _, err := os.Stat(pak); err != nil {
		t.Fatalf("package output missing: %v", err)
	}

	if out, err := runKiln(t, cfgPath, dir, "image"); err != nil {
		t.Fatalf("image failed: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "rawspec.img")); err != nil {
		t.Fatalf("image output missing: %v", err)
	}

	out, err = runKiln(t, cfgPath, dir, "status")
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "cook") || !strings.Contains(out, "package") {
		t.Fatalf("status output = %q", out)
	}
}

func TestSpecListShowsEnabledState(t *testing.T) {
	cfgPath := writeTestConfig(t)
	dir := t.TempDir()
	if out, err := runKiln(t, cfgPath, dir, "init"); err != nil {
		t.Fatalf("init failed: %v\n%s", err, out)
	}

	out, err := runKiln(t, cfgPath, dir, "spec", "list")
	if err != nil {
		t.Fatalf("spec list failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "rawspec") || !strings.Contains(out, "no") {
		t.Fatalf("spec list output = %q", out)
	}

	if out, err := runKiln(t, cfgPath, dir, "spec", "enable", "rawspec"); err != nil {
		t.Fatalf("spec enable failed: %v\n%s", err, out)
	}
	out, err = runKiln(t, cfgPath, dir, "spec", "list")
	if err != nil {
		t.Fatalf("spec list failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "yes") {
		t.Fatalf("spec list output = %q", out)
	}
}

func TestCommandsOutsideProjectFail(t *testing.T) {
	cfgPath := writeTestConfig(t)
	dir := t.TempDir()

	_, err := runKiln(t, cfgPath, dir, "cook")
	if err == nil || !strings.Contains(err.Error(), "no kiln project") {
		t.Fatalf("cook outside project error = %v", err)
	}
}

func TestCleanAndRecook(t *testing.T) {
	cfgPath := writeTestConfig(t)
	dir := t.TempDir()
	if out, err := runKiln(t, cfgPath, dir, "init"); err != nil {
		t.Fatalf("init failed: %v\n%s", err, out)
	}
	testsupport.WriteTree(t, dir, map[string]string{"data/a.bin": "payload"})
	if out, err := runKiln(t, cfgPath, dir, "add", "data"); err != nil {
		t.Fatalf("add failed: %v\n%s", err, out)
	}
	if out, err := runKiln(t, cfgPath, dir, "spec", "enable", "rawspec"); err != nil {
		t.Fatalf("spec enable failed: %v\n%s", err, out)
	}
	if out, err := runKiln(t, cfgPath, dir, "cook"); err != nil {
		t.Fatalf("cook failed: %v\n%s", err, out)
	}

	if out, err := runKiln(t, cfgPath, dir, "clean", "-s", "rawspec"); err != nil {
		t.Fatalf("clean failed: %v\n%s", err, out)
	}
	out, err := runKiln(t, cfgPath, dir, "cook")
	if err != nil {
		t.Fatalf("recook failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Cooked 1, skipped 0") {
		t.Fatalf("post-clean cook output = %q", out)
	}
}
