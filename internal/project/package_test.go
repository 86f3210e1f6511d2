package project_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kiln/internal/dataspec"
	"kiln/internal/project"
	"kiln/internal/projpath"
	"kiln/internal/services"
	"kiln/internal/testsupport"
)

func TestPackageVerifiesCookedOutputs(t *testing.T) {
	testsupport.ResetRegistries(t)
	registerFake(t, "alpha")
	p, dir := newTestProject(t)
	ctx := context.Background()
	testsupport.WriteTree(t, dir, map[string]string{
		"data/a.obj": "x",
		"data/b.obj": "y",
	})
	if err := p.AddPaths(ctx, "data"); err != nil {
		t.Fatal(err)
	}
	if err := p.EnableDataSpecs(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}

	err := p.PackagePath(ctx, "data", nil, project.PackageOptions{})
	if !errors.Is(err, services.ErrDependencyMissing) {
		t.Fatalf("uncooked package error = %v, want ErrDependencyMissing", err)
	}
	if !strings.Contains(err.Error(), "data/a.obj") {
		t.Fatalf("error should name the first missing object, got %v", err)
	}
}

func TestPackageCallsBackendOnce(t *testing.T) {
	testsupport.ResetRegistries(t)
	fake := registerFake(t, "alpha")
	calls := 0
	var graphLen int
	fake.doPkg = func(ctx context.Context, path projpath.Path, entry *dataspec.Entry) error {
		calls++
		graph, err := fake.host.BuildDepsgraph(ctx, entry.Name, path)
		if err != nil {
			return err
		}
		graphLen = len(graph.DataNodes())
		return os.WriteFile(fake.host.PackageFile(entry.Name, path), []byte("pak"), 0o644)
	}

	p, dir := newTestProject(t)
	ctx := context.Background()
	testsupport.WriteTree(t, dir, map[string]string{
		"data/a.obj": "x",
		"data/b.obj": "y",
	})
	if err := p.AddPaths(ctx, "data"); err != nil {
		t.Fatal(err)
	}
	if err := p.EnableDataSpecs(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.CookPath(ctx, "data", nil, project.CookOptions{Recursive: true}); err != nil {
		t.Fatal(err)
	}

	if err := p.PackagePath(ctx, "data", nil, project.PackageOptions{}); err != nil {
		t.Fatalf("PackagePath failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("DoPackage called %d times, want once", calls)
	}
	if graphLen != 2 {
		t.Fatalf("backend saw %d data nodes, want 2", graphLen)
	}
	if _, err := os.Stat(p.PackageFile("alpha", "data")); err != nil {
		t.Fatalf("package output missing: %v", err)
	}
}

func TestPackageNoClaimant(t *testing.T) {
	testsupport.ResetRegistries(t)
	fake := registerFake(t, "alpha")
	fake.canPkg = func(projpath.Path) bool { return false }
	p, dir := newTestProject(t)
	ctx := context.Background()
	testsupport.WriteTree(t, dir, map[string]string{"data/a.obj": "x"})
	if err := p.AddPaths(ctx, "data"); err != nil {
		t.Fatal(err)
	}
	if err := p.EnableDataSpecs(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}

	err := p.PackagePath(ctx, "data", nil, project.PackageOptions{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
}

func TestCleanPathForcesRecook(t *testing.T) {
	testsupport.ResetRegistries(t)
	registerFake(t, "alpha")
	p, dir := newTestProject(t)
	ctx := context.Background()
	testsupport.WriteTree(t, dir, map[string]string{"data/a.obj": "x"})
	if err := p.AddPaths(ctx, "data"); err != nil {
		t.Fatal(err)
	}
	if err := p.EnableDataSpecs(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.CookPath(ctx, "data", nil, project.CookOptions{Recursive: true}); err != nil {
		t.Fatal(err)
	}

	if err := p.CleanPath(ctx, "data", "alpha"); err != nil {
		t.Fatalf("CleanPath failed: %v", err)
	}
	if _, err := os.Stat(cookedFileOf(p, "alpha", "data/a.obj")); !os.IsNotExist(err) {
		t.Fatal("clean left cooked output behind")
	}

	report, err := p.CookPath(ctx, "data", nil, project.CookOptions{Recursive: true})
	if err != nil {
		t.Fatal(err)
	}
	if report.Cooked != 1 || report.Skipped != 0 {
		t.Fatalf("post-clean report = %+v, want a full recook", report)
	}
}

func TestRemovePathsDeletesCookedOutput(t *testing.T) {
	testsupport.ResetRegistries(t)
	registerFake(t, "alpha")
	p, dir := newTestProject(t)
	ctx := context.Background()
	testsupport.WriteTree(t, dir, map[string]string{"data/a.obj": "x"})
	if err := p.AddPaths(ctx, "data"); err != nil {
		t.Fatal(err)
	}
	if err := p.EnableDataSpecs(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.CookPath(ctx, "data", nil, project.CookOptions{Recursive: true}); err != nil {
		t.Fatal(err)
	}

	if err := p.RemovePaths(ctx, true, "data"); err != nil {
		t.Fatalf("RemovePaths failed: %v", err)
	}
	if _, err := os.Stat(cookedFileOf(p, "alpha", "data/a.obj")); !os.IsNotExist(err) {
		t.Fatal("remove left cooked output behind")
	}
	if _, err := os.Stat(filepath.Join(dir, "data", "a.obj")); err != nil {
		t.Fatal("remove should never touch working files")
	}
}

func TestCleanUnknownSpec(t *testing.T) {
	testsupport.ResetRegistries(t)
	p, _ := newTestProject(t)
	if err := p.CleanPath(context.Background(), "data", "nope"); !errors.Is(err, services.ErrUnknownSpec) {
		t.Fatalf("error = %v, want ErrUnknownSpec", err)
	}
}

func TestExtractRoutesToClaimingSpec(t *testing.T) {
	testsupport.ResetRegistries(t)
	fake := registerFake(t, "alpha")
	var extracted string
	fake.canExt = func(info dataspec.ExtractPassInfo) (bool, []dataspec.ExtractReport) {
		if !strings.HasSuffix(info.SrcPath, ".pak") {
			return false, nil
		}
		return true, []dataspec.ExtractReport{{Name: "archive", Desc: "test"}}
	}
	fake.doExt = func(info dataspec.ExtractPassInfo) error {
		extracted = info.SrcPath
		return nil
	}

	p, _ := newTestProject(t)
	ctx := context.Background()

	reports, err := p.Extract(ctx, dataspec.ExtractPassInfo{SrcPath: "/tmp/game.pak"}, nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(reports) != 1 || reports[0].Name != "archive" {
		t.Fatalf("reports = %+v", reports)
	}
	if extracted != "/tmp/game.pak" {
		t.Fatalf("backend saw %q", extracted)
	}

	if _, err := p.Extract(ctx, dataspec.ExtractPassInfo{SrcPath: "/tmp/game.zip"}, nil); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("unrecognized source error = %v, want ErrNotFound", err)
	}
}
