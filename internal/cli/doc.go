// Package cli defines the markovbuild command surface and maps failures to
// process exit codes.
package cli
