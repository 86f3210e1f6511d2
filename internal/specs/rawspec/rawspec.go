package rawspec

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"kiln/internal/dataspec"
	"kiln/internal/fileutil"
	"kiln/internal/fingerprint"
	"kiln/internal/object"
	"kiln/internal/progress"
	"kiln/internal/projpath"
	"kiln/internal/services"
	"kiln/internal/workpool"
)

// SpecName is the backend's registry name.
const SpecName = "rawspec"

// Register installs the backend entry and its object types. Call once
// at process start.
func Register() error {
	RegisterObjectTypes()
	return dataspec.Register(&dataspec.Entry{
		Name:      SpecName,
		Desc:      "raw cooked-object containers with reference resolution",
		PakExt:    "kpak",
		CookedExt: ".kobj",
		// Pass 0 cooks everything; pass 1 recooks reference lists once
		// their targets have cooked ids to embed.
		NumCookPasses: 2,
		Factory: func(host dataspec.Host, tool dataspec.Tool, target dataspec.Target) (dataspec.Spec, error) {
			base := dataspec.NewBase(nil)
			s := &Spec{Base: base, host: host, target: target, ids: make(map[projpath.Path]uint64)}
			return s, nil
		},
	})
}

// MustRegister panics on registration failure.
func MustRegister() {
	if err := Register(); err != nil {
		panic(err)
	}
}

// Spec is one compiled backend instance bound to a project host.
type Spec struct {
	dataspec.Base
	host   dataspec.Host
	target dataspec.Target

	mu  sync.Mutex
	ids map[projpath.Path]uint64 // content ids minted this run

	interrupted atomic.Bool
}

// Entry returns the registration record.
func (s *Spec) Entry() *dataspec.Entry {
	entry, _ := dataspec.Lookup(SpecName)
	return entry
}

// InterruptCook makes in-flight cook and package calls return at the
// next object boundary.
func (s *Spec) InterruptCook() { s.interrupted.Store(true) }

func (s *Spec) checkInterrupt() error {
	if s.interrupted.Load() || s.host.Interrupted() {
		return services.Wrap(services.ErrInterrupted, SpecName, "cook", "", nil)
	}
	return nil
}

func (s *Spec) order() binary.ByteOrder {
	if s.target.Endianness == object.EndianBig {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// CanCook claims every working file on the primary pass. The
// resolution pass touches only reference lists.
func (s *Spec) CanCook(path projpath.Path, pass int) bool {
	if pass <= 0 {
		return true
	}
	return pass == 1 && path.Ext() == refExt
}

// DoCook cooks path into cookedFile as a KOBJ container. Reference
// lists embed the cooked content ids of their targets when those are
// already known; unknown targets stay as zero placeholders for the
// next pass to fill in.
func (s *Spec) DoCook(ctx context.Context, path projpath.Path, cookedFile string, fast bool, prog progress.Reporter) error {
	if err := s.checkInterrupt(); err != nil {
		return err
	}

	var (
		payload []byte
		typ     object.FourCC
		err     error
	)
	switch path.Ext() {
	case sceneExt:
		typ = object.FourCCOf("SCNE")
		payload, err = s.cookScene(ctx, path, fast)
	case refExt:
		typ = object.FourCCOf("REFS")
		payload, err = s.cookRef(path)
	default:
		obj := object.Materialize(hostEnv{s.host}, path)
		typ = obj.Type()
		var buf bytes.Buffer
		ok := obj.CookObject(func(chunk []byte) error {
			_, werr := buf.Write(chunk)
			return werr
		}, s.target.Endianness, s.target.Platform)
		if !ok {
			err = services.Wrap(services.ErrCookFailed, SpecName, "cook",
				fmt.Sprintf("object %s produced no cooked bytes", path), nil)
		}
		payload = buf.Bytes()
	}
	if err != nil {
		return err
	}

	id := fingerprint.Sum64(payload)
	cooked := encodeCooked(s.order(), typ, id, payload)
	if err := os.WriteFile(cookedFile, cooked, 0o644); err != nil {
		return fmt.Errorf("write cooked object: %w", err)
	}

	s.mu.Lock()
	s.ids[path] = id
	s.mu.Unlock()
	s.host.AddBridgePath(id, path)
	return nil
}

// cookScene hands the scene to the authoring tool and takes back the
// cooked buffer.
func (s *Spec) cookScene(ctx context.Context, path projpath.Path, fast bool) ([]byte, error) {
	sess, err := s.host.BridgeSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	abs := s.host.WorkingFile(path)
	if err := sess.Open(abs); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, SpecName, "cook scene", string(path), err)
	}
	payload, err := sess.CookToBuffer(abs, object.FourCCOf("SCNE"),
		s.target.Platform, s.target.Endianness == object.EndianBig)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, SpecName, "cook scene", string(path), err)
	}
	return payload, nil
}

// cookRef resolves each referenced path to its cooked content id:
// first from the ids minted earlier in this run, then from the
// target's cooked file on disk, else a zero placeholder.
func (s *Spec) cookRef(path projpath.Path) ([]byte, error) {
	deps, err := parseRefFile(s.host.WorkingFile(path))
	if err != nil {
		return nil, fmt.Errorf("parse reference list: %w", err)
	}

	refs := make([]refEntry, 0, len(deps))
	for _, dep := range deps {
		refs = append(refs, refEntry{ID: s.idFor(dep), Path: string(dep)})
	}
	return encodeRefPayload(s.order(), refs), nil
}

func (s *Spec) idFor(dep projpath.Path) uint64 {
	s.mu.Lock()
	id, ok := s.ids[dep]
	s.mu.Unlock()
	if ok {
		return id
	}
	if id, ok := readCookedID(s.order(), s.host.CookedFile(SpecName, dep)); ok {
		return id
	}
	return 0
}

// CanPackage claims any working directory.
func (s *Spec) CanPackage(path projpath.Path) bool {
	info, err := os.Stat(s.host.WorkingFile(path))
	return err == nil && info.IsDir()
}

// DoPackage streams the dependency graph's cooked objects into one
// KPAK archive, in graph preorder so group members stay contiguous.
func (s *Spec) DoPackage(ctx context.Context, path projpath.Path, entry *dataspec.Entry, fast bool, prog progress.Reporter, pool *workpool.Pool) error {
	graph, err := s.host.BuildDepsgraph(ctx, entry.Name, path)
	if err != nil {
		return err
	}
	nodes := graph.DataNodes()

	// Cooked blobs load concurrently when a pool is available; the
	// archive itself is assembled in graph order regardless. Each load
	// polls for interruption and reports its own progress so serial
	// and pooled packaging behave the same.
	entries := make([]pakEntry, len(nodes))
	loadErrs := make([]error, len(nodes))
	var (
		done   atomic.Int64
		progMu sync.Mutex
	)
	load := func(i int) {
		if err := s.checkInterrupt(); err != nil {
			loadErrs[i] = err
			return
		}
		n := nodes[i]
		data, err := os.ReadFile(n.CookedPath)
		if err != nil {
			loadErrs[i] = fmt.Errorf("read cooked object %s: %w", n.Path, err)
			return
		}
		header, _, err := decodeCooked(s.order(), data)
		if err != nil {
			loadErrs[i] = fmt.Errorf("cooked object %s: %w", n.Path, err)
			return
		}
		entries[i] = pakEntry{ID: header.ID, Type: header.Type, Path: string(n.Path), Data: data}
		completed := done.Add(1)
		progMu.Lock()
		prog(string(n.Path), float64(completed)/float64(len(nodes)))
		progMu.Unlock()
	}
	if pool != nil {
		for i := range nodes {
			i := i
			pool.Submit(func() { load(i) })
		}
		pool.Wait()
	} else {
		for i := range nodes {
			load(i)
		}
	}
	for _, err := range loadErrs {
		if services.IsInterrupted(err) {
			return err
		}
	}
	for _, err := range loadErrs {
		if err != nil {
			return services.Wrap(services.ErrDependencyMissing, SpecName, "package", "", err)
		}
	}
	if err := s.checkInterrupt(); err != nil {
		return err
	}

	out := s.host.PackageFile(entry.Name, path)
	if err := fileutil.WriteFileAtomic(out, encodePak(s.order(), entries), 0o644); err != nil {
		return fmt.Errorf("write package: %w", err)
	}
	prog(filepath.Base(out), 1)
	return nil
}

// CanExtract recognizes the backend's own archives.
func (s *Spec) CanExtract(info dataspec.ExtractPassInfo) (bool, []dataspec.ExtractReport) {
	if !strings.HasSuffix(info.SrcPath, ".kpak") {
		return false, nil
	}
	data, err := os.ReadFile(info.SrcPath)
	if err != nil {
		return false, nil
	}
	entries, err := decodePak(s.order(), data)
	if err != nil {
		return false, nil
	}

	report := dataspec.ExtractReport{
		Name: filepath.Base(info.SrcPath),
		Desc: fmt.Sprintf("%d cooked object(s)", len(entries)),
	}
	for _, e := range entries {
		report.Children = append(report.Children, dataspec.ExtractReport{
			Name: e.Path,
			Desc: e.Type.String(),
		})
	}
	return true, []dataspec.ExtractReport{report}
}

// DoExtract writes each archived payload back to its working path and
// primes the bridge cache with the archived content ids.
func (s *Spec) DoExtract(ctx context.Context, info dataspec.ExtractPassInfo, prog progress.Reporter) error {
	data, err := os.ReadFile(info.SrcPath)
	if err != nil {
		return services.Wrap(services.ErrNotFound, SpecName, "extract", info.SrcPath, err)
	}
	entries, err := decodePak(s.order(), data)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, SpecName, "extract", info.SrcPath, err)
	}

	for i, e := range entries {
		if err := s.checkInterrupt(); err != nil {
			return err
		}
		p, err := projpath.New(e.Path)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, SpecName, "extract",
				fmt.Sprintf("archived path %q", e.Path), err)
		}
		_, payload, err := decodeCooked(s.order(), e.Data)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, SpecName, "extract", e.Path, err)
		}
		if e.Type == object.FourCCOf("REFS") {
			// Reference lists extract back to their editable text form.
			refs, err := decodeRefPayload(s.order(), payload)
			if err != nil {
				return services.Wrap(services.ErrConfiguration, SpecName, "extract", e.Path, err)
			}
			var sb strings.Builder
			for _, r := range refs {
				sb.WriteString(r.Path)
				sb.WriteByte('\n')
			}
			payload = []byte(sb.String())
		}

		dest := s.host.WorkingFile(p)
		if !info.Force {
			if _, statErr := os.Stat(dest); statErr == nil {
				prog(e.Path, float64(i+1)/float64(len(entries)))
				continue // never clobber an existing working file unforced
			}
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("ensure %s: %w", filepath.Dir(dest), err)
		}
		if err := os.WriteFile(dest, payload, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dest, err)
		}
		s.host.AddBridgePath(e.ID, p)
		prog(e.Path, float64(i+1)/float64(len(entries)))
	}
	return nil
}
