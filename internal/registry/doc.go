// Package registry provides the central "glue" for the module system.
//
// The Registry maps the task types used in build descriptors (e.g.
// "java_exec") to the compiled Go input structs and handlers that implement
// them. During application startup every task of the loaded model is
// decoded and validated against its runner, so argument errors surface
// before any task runs.
package registry
