package rawspec

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"kiln/internal/dataspec"
	"kiln/internal/fingerprint"
	"kiln/internal/logging"
	"kiln/internal/object"
	"kiln/internal/progress"
	"kiln/internal/project"
	"kiln/internal/projpath"
	"kiln/internal/services"
	"kiln/internal/testsupport"
	"kiln/internal/workpool"
)

// newPipelineProject initializes a project with the backend registered
// and enabled, returning the project and its working root.
func newPipelineProject(t *testing.T) (*project.Project, string) {
	t.Helper()
	testsupport.ResetRegistries(t)
	if err := Register(); err != nil {
		t.Fatalf("register backend: %v", err)
	}
	project.ResetInterrupt()
	t.Cleanup(project.ResetInterrupt)

	dir := t.TempDir()
	p, err := project.Init(dir, testsupport.NewConfig(t), logging.NewNop())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	if err := p.EnableDataSpecs(context.Background(), SpecName); err != nil {
		t.Fatalf("enable backend: %v", err)
	}
	return p, dir
}

func cookBothPasses(t *testing.T, p *project.Project) {
	t.Helper()
	ctx := context.Background()
	for pass := 0; pass < 2; pass++ {
		if _, err := p.CookPath(ctx, projpath.Root, nil, project.CookOptions{Recursive: true, Pass: pass}); err != nil {
			t.Fatalf("cook pass %d failed: %v", pass, err)
		}
	}
}

func decodeCookedFile(t *testing.T, path string) (cookedHeader, []byte) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cooked file: %v", err)
	}
	header, payload, err := decodeCooked(binary.LittleEndian, data)
	if err != nil {
		t.Fatalf("decode cooked file %s: %v", path, err)
	}
	return header, payload
}

func TestCookResolvesReferencesAcrossPasses(t *testing.T) {
	p, dir := newPipelineProject(t)
	ctx := context.Background()
	testsupport.WriteTree(t, dir, map[string]string{
		"textures/a.png":  "png bytes",
		"models/hero.ref": "textures/a.png\n",
	})
	if err := p.AddPaths(ctx, "textures", "models"); err != nil {
		t.Fatal(err)
	}

	report, err := p.CookPath(ctx, projpath.Root, nil, project.CookOptions{Recursive: true, Pass: 0})
	if err != nil {
		t.Fatalf("pass 0 failed: %v", err)
	}
	if report.Cooked != 2 {
		t.Fatalf("pass 0 cooked %d, want 2", report.Cooked)
	}

	refCooked := p.CookedFile(SpecName, "models/hero.ref")
	header, payload := decodeCookedFile(t, refCooked)
	if header.Type != object.FourCCOf("REFS") {
		t.Fatalf("ref cooked type = %s", header.Type)
	}
	refs, err := decodeRefPayload(binary.LittleEndian, payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Path != "textures/a.png" {
		t.Fatalf("refs = %+v", refs)
	}
	// The texture cooked after the list on the primary pass, so the
	// reference still carries the placeholder id.
	if refs[0].ID != 0 {
		t.Fatalf("pass-0 ref id = %#x, want placeholder", refs[0].ID)
	}

	report, err = p.CookPath(ctx, projpath.Root, nil, project.CookOptions{Recursive: true, Pass: 1})
	if err != nil {
		t.Fatalf("pass 1 failed: %v", err)
	}
	if report.Cooked != 1 || report.Skipped != 0 {
		t.Fatalf("pass 1 report = %+v, want exactly the reference list recooked", report)
	}

	_, payload = decodeCookedFile(t, refCooked)
	refs, err = decodeRefPayload(binary.LittleEndian, payload)
	if err != nil {
		t.Fatal(err)
	}
	wantID := fingerprint.Sum64([]byte("png bytes"))
	if refs[0].ID != wantID {
		t.Fatalf("resolved ref id = %#x, want %#x", refs[0].ID, wantID)
	}
	gotID, ok := readCookedID(binary.LittleEndian, p.CookedFile(SpecName, "textures/a.png"))
	if !ok || gotID != wantID {
		t.Fatalf("texture cooked id = %#x, %v", gotID, ok)
	}

	// With everything resolved, the primary pass has nothing to redo.
	report, err = p.CookPath(ctx, projpath.Root, nil, project.CookOptions{Recursive: true, Pass: 0})
	if err != nil {
		t.Fatalf("pass 0 rerun failed: %v", err)
	}
	if report.Cooked != 0 || report.Skipped != 2 {
		t.Fatalf("pass 0 rerun report = %+v, want all skipped", report)
	}
}

func TestReferenceResolvesFromDiskWhenCacheCold(t *testing.T) {
	p, dir := newPipelineProject(t)
	ctx := context.Background()
	testsupport.WriteTree(t, dir, map[string]string{
		"textures/a.png":  "png bytes",
		"models/hero.ref": "textures/a.png\n",
	})
	if err := p.AddPaths(ctx, "textures", "models"); err != nil {
		t.Fatal(err)
	}
	cookBothPasses(t, p)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	// A fresh process has no in-memory ids; the resolution pass falls
	// back to reading the dependency's cooked header.
	reopened, err := project.Open(dir, testsupport.NewConfig(t), logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if _, err := reopened.CookPath(ctx, "models/hero.ref", nil, project.CookOptions{Pass: 1}); err != nil {
		t.Fatalf("resolution pass after reopen failed: %v", err)
	}

	_, payload := decodeCookedFile(t, reopened.CookedFile(SpecName, "models/hero.ref"))
	refs, err := decodeRefPayload(binary.LittleEndian, payload)
	if err != nil {
		t.Fatal(err)
	}
	if want := fingerprint.Sum64([]byte("png bytes")); refs[0].ID != want {
		t.Fatalf("ref id after reopen = %#x, want %#x", refs[0].ID, want)
	}
}

func TestPackageRoundTrip(t *testing.T) {
	p, dir := newPipelineProject(t)
	ctx := context.Background()
	testsupport.WriteTree(t, dir, map[string]string{
		"textures/a.png":  "png bytes",
		"models/hero.ref": "textures/a.png\n",
	})
	if err := p.AddPaths(ctx, "textures", "models"); err != nil {
		t.Fatal(err)
	}
	cookBothPasses(t, p)

	if err := p.PackagePath(ctx, projpath.Root, nil, project.PackageOptions{}); err != nil {
		t.Fatalf("package failed: %v", err)
	}

	out := p.PackageFile(SpecName, projpath.Root)
	if filepath.Base(out) != filepath.Base(dir)+".kpak" {
		t.Fatalf("package file = %s", out)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read package: %v", err)
	}
	entries, err := decodePak(binary.LittleEndian, data)
	if err != nil {
		t.Fatalf("decode package: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("package holds %d entries, want 2", len(entries))
	}
	// Graph preorder: the reference list first, its dependency next.
	if entries[0].Path != "models/hero.ref" || entries[1].Path != "textures/a.png" {
		t.Fatalf("entry order = %s, %s", entries[0].Path, entries[1].Path)
	}
	if entries[0].Type != object.FourCCOf("REFS") {
		t.Fatalf("ref entry type = %s", entries[0].Type)
	}
	_, payload, err := decodeCooked(binary.LittleEndian, entries[1].Data)
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != "png bytes" {
		t.Fatalf("texture payload = %q", payload)
	}
	if entries[1].ID != fingerprint.Sum64([]byte("png bytes")) {
		t.Fatalf("texture entry id = %#x", entries[1].ID)
	}
}

func TestExtractRestoresWorkingTree(t *testing.T) {
	p, dir := newPipelineProject(t)
	ctx := context.Background()
	testsupport.WriteTree(t, dir, map[string]string{
		"textures/a.png":  "png bytes",
		"models/hero.ref": "textures/a.png\n",
	})
	if err := p.AddPaths(ctx, "textures", "models"); err != nil {
		t.Fatal(err)
	}
	cookBothPasses(t, p)
	if err := p.PackagePath(ctx, projpath.Root, nil, project.PackageOptions{}); err != nil {
		t.Fatal(err)
	}
	pak := p.PackageFile(SpecName, projpath.Root)

	dest := t.TempDir()
	project.ResetInterrupt()
	p2, err := project.Init(dest, testsupport.NewConfig(t), logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Close()

	reports, err := p2.Extract(ctx, dataspec.ExtractPassInfo{SrcPath: pak}, nil)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(reports) != 1 || len(reports[0].Children) != 2 {
		t.Fatalf("reports = %+v", reports)
	}

	got, err := os.ReadFile(filepath.Join(dest, "textures", "a.png"))
	if err != nil || string(got) != "png bytes" {
		t.Fatalf("extracted texture = %q, %v", got, err)
	}
	// Reference lists come back in their editable text form.
	got, err = os.ReadFile(filepath.Join(dest, "models", "hero.ref"))
	if err != nil || string(got) != "textures/a.png\n" {
		t.Fatalf("extracted reference list = %q, %v", got, err)
	}

	// Unforced extraction never clobbers existing working files.
	if err := os.WriteFile(filepath.Join(dest, "textures", "a.png"), []byte("edited"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := p2.Extract(ctx, dataspec.ExtractPassInfo{SrcPath: pak}, nil); err != nil {
		t.Fatal(err)
	}
	got, _ = os.ReadFile(filepath.Join(dest, "textures", "a.png"))
	if string(got) != "edited" {
		t.Fatal("unforced extract overwrote an edited working file")
	}
	if _, err := p2.Extract(ctx, dataspec.ExtractPassInfo{SrcPath: pak, Force: true}, nil); err != nil {
		t.Fatal(err)
	}
	got, _ = os.ReadFile(filepath.Join(dest, "textures", "a.png"))
	if string(got) != "png bytes" {
		t.Fatal("forced extract left the edited file in place")
	}
}

func TestGroupMembersPackContiguously(t *testing.T) {
	p, dir := newPipelineProject(t)
	ctx := context.Background()
	testsupport.WriteTree(t, dir, map[string]string{
		"world/area1.bin":  "area one",
		"world/area2.bin":  "area two",
		"textures/sky.png": "sky pixels",
	})
	if err := p.AddPaths(ctx, "world", "textures"); err != nil {
		t.Fatal(err)
	}
	if err := p.AddGroup(ctx, "world"); err != nil {
		t.Fatal(err)
	}
	cookBothPasses(t, p)
	if err := p.PackagePath(ctx, projpath.Root, nil, project.PackageOptions{}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(p.PackageFile(SpecName, projpath.Root))
	if err != nil {
		t.Fatal(err)
	}
	entries, err := decodePak(binary.LittleEndian, data)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("package holds %d entries, want 3", len(entries))
	}
	// The group's members stay adjacent regardless of where the group
	// sits in the top-level walk.
	var worldAt []int
	for i, e := range entries {
		if filepath.Dir(e.Path) == "world" {
			worldAt = append(worldAt, i)
		}
	}
	if len(worldAt) != 2 || worldAt[1] != worldAt[0]+1 {
		t.Fatalf("group members landed at %v, want adjacent", worldAt)
	}
}

// packageSpec compiles a fresh backend instance the way the
// orchestrator's factory does, bound to the given project host.
func packageSpec(t *testing.T, p *project.Project) dataspec.Spec {
	t.Helper()
	entry, ok := dataspec.Lookup(SpecName)
	if !ok {
		t.Fatal("backend not registered")
	}
	inst, err := entry.Factory(p, dataspec.ToolPackage,
		dataspec.Target{Platform: object.PlatformGeneric, Endianness: object.EndianLittle})
	if err != nil {
		t.Fatalf("compile backend: %v", err)
	}
	return inst
}

func TestPackageHonorsProcessInterrupt(t *testing.T) {
	p, dir := newPipelineProject(t)
	ctx := context.Background()
	testsupport.WriteTree(t, dir, map[string]string{
		"textures/a.png": "png bytes",
		"world/a.bin":    "area one",
	})
	if err := p.AddPaths(ctx, "textures", "world"); err != nil {
		t.Fatal(err)
	}
	cookBothPasses(t, p)

	entry, _ := dataspec.Lookup(SpecName)
	inst := packageSpec(t, p)

	// A signal sets only the process-wide flag; the backend's loops
	// must still see it through the host.
	project.InterruptCook()
	err := inst.DoPackage(ctx, projpath.Root, entry, false, progress.Nop(), nil)
	if !services.IsInterrupted(err) {
		t.Fatalf("serial package error = %v, want interruption", err)
	}
	if _, err := os.Stat(p.PackageFile(SpecName, projpath.Root)); !os.IsNotExist(err) {
		t.Fatal("interrupted package must not write an archive")
	}

	pool := workpool.New(2)
	defer pool.Close()
	err = inst.DoPackage(ctx, projpath.Root, entry, false, progress.Nop(), pool)
	if !services.IsInterrupted(err) {
		t.Fatalf("pooled package error = %v, want interruption", err)
	}
	if _, err := os.Stat(p.PackageFile(SpecName, projpath.Root)); !os.IsNotExist(err) {
		t.Fatal("interrupted pooled package must not write an archive")
	}
}

func TestPackagePooledMatchesSerialOrder(t *testing.T) {
	p, dir := newPipelineProject(t)
	ctx := context.Background()
	testsupport.WriteTree(t, dir, map[string]string{
		"textures/a.png":  "png bytes",
		"models/hero.ref": "textures/a.png\n",
	})
	if err := p.AddPaths(ctx, "textures", "models"); err != nil {
		t.Fatal(err)
	}
	cookBothPasses(t, p)

	pool := workpool.New(2)
	defer pool.Close()
	if err := p.PackagePath(ctx, projpath.Root, nil, project.PackageOptions{Pool: pool}); err != nil {
		t.Fatalf("pooled package failed: %v", err)
	}

	data, err := os.ReadFile(p.PackageFile(SpecName, projpath.Root))
	if err != nil {
		t.Fatal(err)
	}
	entries, err := decodePak(binary.LittleEndian, data)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("package holds %d entries, want 2", len(entries))
	}
	// Concurrent loads must not disturb graph preorder in the archive.
	if entries[0].Path != "models/hero.ref" || entries[1].Path != "textures/a.png" {
		t.Fatalf("entry order = %s, %s", entries[0].Path, entries[1].Path)
	}
}
