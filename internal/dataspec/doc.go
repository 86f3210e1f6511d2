// Package dataspec defines the pluggable backend contract and the
// process-wide registry of backends.
//
// A backend registers one Entry describing itself and a factory that
// builds Spec instances bound to a project and a tool mode. The Spec
// interface separates claiming work (CanExtract, CanCook, CanPackage)
// from performing it (DoExtract, DoCook, DoPackage) so the
// orchestrator can pick a backend without committing side effects, and
// several backends can coexist over one working tree.
package dataspec
