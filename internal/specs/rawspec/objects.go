package rawspec

import (
	"bufio"
	"os"
	"strings"

	"kiln/internal/dataspec"
	"kiln/internal/object"
	"kiln/internal/projpath"
)

// refExt marks reference-list files: plain text, one dependency path
// per line, blanks and #-comments ignored.
const refExt = ".ref"

// sceneExt marks authored scenes cooked through the bridge.
const sceneExt = ".scene"

// RegisterObjectTypes installs the backend's object constructors in
// the process type registry. Safe to call more than once.
func RegisterObjectTypes() {
	object.RegisterType(refExt, func(env object.Env, p projpath.Path) object.Object {
		return &refObject{Base: object.NewBase(p, object.FourCCOf("REFS")), env: env}
	})
}

// hostEnv adapts the backend host to the object registry's
// environment so the backend can materialize objects itself.
type hostEnv struct {
	host dataspec.Host
}

func (e hostEnv) WorkingFile(p projpath.Path) string { return e.host.WorkingFile(p) }

func (e hostEnv) Materialize(p projpath.Path) object.Object { return object.Materialize(e, p) }

// refObject surfaces the paths listed in a .ref file as dependency
// edges for graph construction.
type refObject struct {
	object.Base
	env object.Env
}

func (o *refObject) GatherDeps(add object.DepAdder) {
	deps, err := parseRefFile(o.env.WorkingFile(o.Path()))
	if err != nil {
		return
	}
	for _, dep := range deps {
		add(o.env.Materialize(dep))
	}
}

func parseRefFile(abs string) ([]projpath.Path, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var deps []projpath.Path
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		dep, err := projpath.New(line)
		if err != nil {
			continue // a malformed line never breaks the rest of the list
		}
		deps = append(deps, dep)
	}
	return deps, scanner.Err()
}
