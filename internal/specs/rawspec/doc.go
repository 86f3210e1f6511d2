// Package rawspec is the builtin dataspec backend. It cooks working
// files into self-describing KOBJ containers, resolves .ref reference
// lists over a second cook pass, packages dependency graphs into KPAK
// archives, and extracts its own archives and images back into working
// resources. Scene files are cooked through the authoring-tool bridge.
package rawspec
