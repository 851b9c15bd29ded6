// Package hcl provides the HCL implementation of the config.Loader
// interface. It parses build descriptor files, evaluates locals, translates
// task blocks into the format-agnostic model and builds the evaluation
// context task arguments are later decoded against.
package hcl
