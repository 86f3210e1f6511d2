package depsgraph

import (
	"context"
	"fmt"

	"kiln/internal/object"
	"kiln/internal/projpath"
)

// NodeType discriminates arena nodes.
type NodeType int

const (
	// NodeData is one packagable object.
	NodeData NodeType = iota
	// NodeGroup is a directory whose members package as one unit.
	NodeGroup
)

func (t NodeType) String() string {
	switch t {
	case NodeData:
		return "data"
	case NodeGroup:
		return "group"
	default:
		return "unknown"
	}
}

// None marks an absent Sub or Next link.
const None int32 = -1

// Node is one arena entry. Sub points at the head of the child chain,
// Next at the following sibling. Data nodes carry the materialized
// object and the cooked file the packager reads from.
type Node struct {
	Type       NodeType
	Path       projpath.Path
	CookedPath string
	Object     object.Object
	Sub        int32
	Next       int32
}

// Source is the project view Build resolves paths through.
type Source interface {
	// Object materializes the object for a working path.
	Object(p projpath.Path) (object.Object, error)
	// CookedPath resolves the absolute cooked file for a working path.
	CookedPath(p projpath.Path) string
	// GroupFor returns the registered group directory governing p,
	// which may be p itself. False when no group claims it.
	GroupFor(p projpath.Path) (projpath.Path, bool)
	// ListDir returns every cookable file under dir, recursively, in
	// deterministic walk order.
	ListDir(dir projpath.Path) ([]projpath.Path, error)
}

// Graph is a built dependency graph. Node 0 is the root.
type Graph struct {
	nodes []Node
}

// Len returns the arena size including the root.
func (g *Graph) Len() int { return len(g.nodes) }

// Root returns the root node.
func (g *Graph) Root() *Node { return &g.nodes[0] }

// Node returns the arena entry at idx.
func (g *Graph) Node(idx int32) *Node { return &g.nodes[idx] }

// Walk visits every node in preorder, root first. Returning false from
// visit stops the walk.
func (g *Graph) Walk(visit func(idx int32, n *Node) bool) {
	if len(g.nodes) == 0 {
		return
	}
	stack := []int32{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &g.nodes[idx]
		if !visit(idx, n) {
			return
		}
		// Push next before sub so the child chain is visited first.
		if n.Next != None {
			stack = append(stack, n.Next)
		}
		if n.Sub != None {
			stack = append(stack, n.Sub)
		}
	}
}

// DataNodes returns the data nodes in preorder, which is the order a
// packager should emit them.
func (g *Graph) DataNodes() []*Node {
	var out []*Node
	g.Walk(func(_ int32, n *Node) bool {
		if n.Type == NodeData {
			out = append(out, n)
		}
		return true
	})
	return out
}

type dedupKey struct {
	path  projpath.Path
	group projpath.Path
}

type builder struct {
	ctx   context.Context
	src   Source
	nodes []Node
	seen  map[dedupKey]int32
}

// Build constructs the graph for the directory at root. Members that
// fall under a registered group directory collapse into that group's
// node; everything else becomes a top-level data node with its
// dependency closure nested beneath it.
func Build(ctx context.Context, src Source, root projpath.Path) (*Graph, error) {
	b := &builder{ctx: ctx, src: src, seen: make(map[dedupKey]int32)}

	rootIdx := b.alloc(Node{Type: NodeGroup, Path: root, Sub: None, Next: None})
	b.seen[dedupKey{path: root}] = rootIdx

	if _, isGroup := src.GroupFor(root); isGroup {
		if err := b.expandGroup(rootIdx, root); err != nil {
			return nil, err
		}
		return &Graph{nodes: b.nodes}, nil
	}

	files, err := src.ListDir(root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	tail := None
	for _, f := range files {
		if err := b.ctx.Err(); err != nil {
			return nil, err
		}
		idx, created, err := b.addTop(f)
		if err != nil {
			return nil, err
		}
		if created {
			tail = b.link(rootIdx, tail, idx)
		}
	}
	return &Graph{nodes: b.nodes}, nil
}

func (b *builder) alloc(n Node) int32 {
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, n)
	return idx
}

// link appends child to parent's Sub chain and returns the new tail.
func (b *builder) link(parent, tail, child int32) int32 {
	if tail == None {
		b.nodes[parent].Sub = child
	} else {
		b.nodes[tail].Next = child
	}
	return child
}

// addTop places a path in the top-level context: group members route
// to their group node, everything else becomes a data node carrying
// its dependencies as children.
func (b *builder) addTop(p projpath.Path) (int32, bool, error) {
	if g, ok := b.src.GroupFor(p); ok {
		return b.addGroup(g)
	}

	idx, created, err := b.dataNode(p, projpath.Root)
	if err != nil || !created {
		return idx, created, err
	}

	deps := b.depsOf(b.nodes[idx].Object)
	tail := None
	for _, d := range deps {
		di, dcreated, err := b.addTop(d)
		if err != nil {
			return None, false, err
		}
		if dcreated {
			tail = b.link(idx, tail, di)
		}
	}
	return idx, true, nil
}

func (b *builder) addGroup(g projpath.Path) (int32, bool, error) {
	k := dedupKey{path: g}
	if idx, ok := b.seen[k]; ok {
		return idx, false, nil
	}
	idx := b.alloc(Node{Type: NodeGroup, Path: g, Sub: None, Next: None})
	b.seen[k] = idx
	if err := b.expandGroup(idx, g); err != nil {
		return None, false, err
	}
	return idx, true, nil
}

// expandGroup fills a group node's child chain: first the member run,
// contiguous so the packager can address the group as a dense range,
// then the members' transitive dependencies, deduplicated within the
// group. Dependencies living under another group are duplicated here
// rather than nested, so groups never contain groups.
func (b *builder) expandGroup(idx int32, g projpath.Path) error {
	members, err := b.src.ListDir(g)
	if err != nil {
		return fmt.Errorf("list group %s: %w", g, err)
	}

	tail := None
	for _, m := range members {
		mi, created, err := b.dataNode(m, g)
		if err != nil {
			return err
		}
		if created {
			tail = b.link(idx, tail, mi)
		}
	}

	queue := append([]projpath.Path(nil), members...)
	for qi := 0; qi < len(queue); qi++ {
		if err := b.ctx.Err(); err != nil {
			return err
		}
		ni, ok := b.seen[dedupKey{path: queue[qi], group: g}]
		if !ok {
			continue
		}
		for _, d := range b.depsOf(b.nodes[ni].Object) {
			di, created, err := b.dataNode(d, g)
			if err != nil {
				return err
			}
			if created {
				tail = b.link(idx, tail, di)
				queue = append(queue, d)
			}
		}
	}
	return nil
}

func (b *builder) dataNode(p, group projpath.Path) (int32, bool, error) {
	k := dedupKey{path: p, group: group}
	if idx, ok := b.seen[k]; ok {
		return idx, false, nil
	}
	obj, err := b.src.Object(p)
	if err != nil {
		return None, false, fmt.Errorf("resolve %s: %w", p, err)
	}
	idx := b.alloc(Node{
		Type:       NodeData,
		Path:       p,
		CookedPath: b.src.CookedPath(p),
		Object:     obj,
		Sub:        None,
		Next:       None,
	})
	b.seen[k] = idx
	return idx, true, nil
}

// depsOf collects direct dependency paths in first-discovery order.
func (b *builder) depsOf(obj object.Object) []projpath.Path {
	if obj == nil {
		return nil
	}
	var (
		deps []projpath.Path
		seen = make(map[projpath.Path]struct{})
	)
	obj.GatherDeps(func(dep object.Object) {
		if dep == nil {
			return
		}
		p := dep.Path()
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		deps = append(deps, p)
	})
	return deps
}
