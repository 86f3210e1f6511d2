package depsgraph_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"kiln/internal/depsgraph"
	"kiln/internal/object"
	"kiln/internal/projpath"
)

// fakeObject is a leaf with explicit dependency edges.
type fakeObject struct {
	object.Base
	src  *fakeSource
	deps []projpath.Path
}

func (o *fakeObject) GatherDeps(add object.DepAdder) {
	for _, d := range o.deps {
		add(o.src.mustObject(d))
	}
}

// fakeSource is an in-memory project: files, dependency edges, and
// registered group directories.
type fakeSource struct {
	files  map[projpath.Path][]projpath.Path
	groups []projpath.Path
}

func newFakeSource() *fakeSource {
	return &fakeSource{files: make(map[projpath.Path][]projpath.Path)}
}

func (s *fakeSource) add(path string, deps ...string) {
	var dp []projpath.Path
	for _, d := range deps {
		dp = append(dp, projpath.Path(d))
	}
	s.files[projpath.Path(path)] = dp
}

func (s *fakeSource) group(dir string) {
	s.groups = append(s.groups, projpath.Path(dir))
}

func (s *fakeSource) mustObject(p projpath.Path) object.Object {
	return &fakeObject{Base: object.NewBase(p, object.TypeForExt(p.Ext())), src: s, deps: s.files[p]}
}

func (s *fakeSource) Object(p projpath.Path) (object.Object, error) {
	if _, ok := s.files[p]; !ok {
		return nil, fmt.Errorf("no such file %s", p)
	}
	return s.mustObject(p), nil
}

func (s *fakeSource) CookedPath(p projpath.Path) string {
	return "/cooked/" + string(p)
}

func (s *fakeSource) GroupFor(p projpath.Path) (projpath.Path, bool) {
	for _, g := range s.groups {
		if g == p || g.IsAncestorOf(p) {
			return g, true
		}
	}
	return projpath.Root, false
}

func (s *fakeSource) ListDir(dir projpath.Path) ([]projpath.Path, error) {
	var out []projpath.Path
	for p := range s.files {
		if dir.IsRoot() || dir.IsAncestorOf(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// chain collects the Sub chain of a node as paths.
func chain(g *depsgraph.Graph, n *depsgraph.Node) []string {
	var out []string
	for idx := n.Sub; idx != depsgraph.None; idx = g.Node(idx).Next {
		out = append(out, string(g.Node(idx).Path))
	}
	return out
}

func TestBuildFlatDependencies(t *testing.T) {
	src := newFakeSource()
	src.add("models/hero.obj", "textures/skin.png", "textures/cloth.png")
	src.add("textures/skin.png")
	src.add("textures/cloth.png")

	g, err := depsgraph.Build(context.Background(), src, projpath.Root)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	root := g.Root()
	if root.Type != depsgraph.NodeGroup {
		t.Fatalf("root type = %v, want group", root.Type)
	}

	// hero carries its deps as children; the textures do not repeat at
	// top level afterwards.
	top := chain(g, root)
	if len(top) != 1 || top[0] != "models/hero.obj" {
		t.Fatalf("top chain = %v, want only models/hero.obj", top)
	}
	hero := g.Node(root.Sub)
	deps := chain(g, hero)
	want := []string{"textures/skin.png", "textures/cloth.png"}
	if strings.Join(deps, ",") != strings.Join(want, ",") {
		t.Fatalf("hero deps = %v, want %v (first-discovery order)", deps, want)
	}

	if hero.CookedPath != "/cooked/models/hero.obj" {
		t.Fatalf("cooked path = %q", hero.CookedPath)
	}
}

func TestBuildDedupsSharedDependency(t *testing.T) {
	src := newFakeSource()
	src.add("a.obj", "shared.png")
	src.add("b.obj", "shared.png")
	src.add("shared.png")

	g, err := depsgraph.Build(context.Background(), src, projpath.Root)
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	g.Walk(func(_ int32, n *depsgraph.Node) bool {
		if n.Path == "shared.png" {
			count++
		}
		return true
	})
	if count != 1 {
		t.Fatalf("shared.png appears %d times at top level, want 1", count)
	}
}

func TestBuildGroupMembersContiguous(t *testing.T) {
	src := newFakeSource()
	src.add("world/area.lvl", "textures/sky.png")
	src.add("world/props.lay")
	src.add("textures/sky.png")
	src.group("world")

	g, err := depsgraph.Build(context.Background(), src, projpath.Root)
	if err != nil {
		t.Fatal(err)
	}

	// Walk order is lexical, so the standalone texture comes first and
	// the group claims both world files.
	top := chain(g, g.Root())
	want := []string{"textures/sky.png", "world"}
	if strings.Join(top, ",") != strings.Join(want, ",") {
		t.Fatalf("top chain = %v, want %v", top, want)
	}
	groupNode := g.Node(g.Node(g.Root().Sub).Next)
	if groupNode.Type != depsgraph.NodeGroup {
		t.Fatalf("world node type = %v, want group", groupNode.Type)
	}

	members := chain(g, groupNode)
	want = []string{"world/area.lvl", "world/props.lay", "textures/sky.png"}
	if strings.Join(members, ",") != strings.Join(want, ",") {
		t.Fatalf("group chain = %v, want members first then deps: %v", members, want)
	}

	// Member run must be a dense index range for range-addressed paks.
	first := groupNode.Sub
	second := g.Node(first).Next
	if second != first+1 {
		t.Fatalf("member indices %d,%d not contiguous", first, second)
	}
}

func TestBuildDuplicatesAcrossGroups(t *testing.T) {
	src := newFakeSource()
	src.add("area1/room.lvl", "shared/tileset.png")
	src.add("area2/room.lvl", "shared/tileset.png")
	src.add("shared/tileset.png")
	src.group("area1")
	src.group("area2")

	g, err := depsgraph.Build(context.Background(), src, projpath.Root)
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	g.Walk(func(_ int32, n *depsgraph.Node) bool {
		if n.Path == "shared/tileset.png" {
			count++
		}
		return true
	})
	if count != 3 {
		t.Fatalf("tileset appears %d times, want 3 (once per group, once top level)", count)
	}

	// Groups never nest, even when a dep lives under another group dir.
	g.Walk(func(_ int32, n *depsgraph.Node) bool {
		if n.Type != depsgraph.NodeGroup || n.Path == projpath.Root {
			return true
		}
		for idx := n.Sub; idx != depsgraph.None; idx = g.Node(idx).Next {
			if g.Node(idx).Type == depsgraph.NodeGroup {
				t.Fatalf("group %s contains nested group %s", n.Path, g.Node(idx).Path)
			}
		}
		return true
	})
}

func TestBuildGroupDedupsWithinGroup(t *testing.T) {
	src := newFakeSource()
	src.add("world/a.lvl", "textures/sky.png")
	src.add("world/b.lvl", "textures/sky.png")
	src.add("textures/sky.png")
	src.group("world")

	g, err := depsgraph.Build(context.Background(), src, projpath.Root)
	if err != nil {
		t.Fatal(err)
	}

	groupNode := g.Node(g.Node(g.Root().Sub).Next)
	members := chain(g, groupNode)
	want := []string{"world/a.lvl", "world/b.lvl", "textures/sky.png"}
	if strings.Join(members, ",") != strings.Join(want, ",") {
		t.Fatalf("group chain = %v, want %v", members, want)
	}
}

func TestBuildRootIsGroup(t *testing.T) {
	src := newFakeSource()
	src.add("world/a.lvl")
	src.add("world/b.lvl")
	src.group("world")

	g, err := depsgraph.Build(context.Background(), src, "world")
	if err != nil {
		t.Fatal(err)
	}
	if g.Root().Path != "world" || g.Root().Type != depsgraph.NodeGroup {
		t.Fatalf("root = %+v", g.Root())
	}
	members := chain(g, g.Root())
	if len(members) != 2 {
		t.Fatalf("members = %v, want both level files", members)
	}
}

func TestBuildMissingDependency(t *testing.T) {
	src := newFakeSource()
	src.add("a.obj", "missing.png")

	_, err := depsgraph.Build(context.Background(), src, projpath.Root)
	if err == nil {
		t.Fatal("unresolvable dependency should fail the build")
	}
	if !strings.Contains(err.Error(), "missing.png") {
		t.Fatalf("error should name the missing path, got %v", err)
	}
}

func TestDataNodesPreorder(t *testing.T) {
	src := newFakeSource()
	src.add("a.obj", "b.png")
	src.add("b.png", "c.png")
	src.add("c.png")

	g, err := depsgraph.Build(context.Background(), src, projpath.Root)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, n := range g.DataNodes() {
		got = append(got, string(n.Path))
	}
	want := []string{"a.obj", "b.png", "c.png"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("data order = %v, want %v", got, want)
	}
}

func TestBuildCancelled(t *testing.T) {
	src := newFakeSource()
	src.add("a.obj")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := depsgraph.Build(ctx, src, projpath.Root); err == nil {
		t.Fatal("cancelled context should abort the build")
	}
}
