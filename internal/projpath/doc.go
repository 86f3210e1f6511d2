// Package projpath models paths relative to a project root.
//
// A Path is a normalized, slash-separated path relative to the project
// working directory. Paths are plain comparable strings so they can be
// used directly as map keys; two Paths are equal exactly when their
// normalized forms are equal. A RootPath anchors Paths to an absolute
// filesystem location for one project instance.
package projpath
