// Package config defines the format-agnostic build model: the project, its
// tasks and the evaluation context their arguments are decoded against.
//
// The `config.Model` is the single source of truth for the `dag`,
// `registry` and `executor` packages. The HCL implementation of the Loader
// lives in a separate package.
package config
