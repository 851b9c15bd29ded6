// Package fingerprint snapshots task inputs and outputs so unchanged tasks
// can be skipped.
//
// A snapshot records, for every file under a declared path, its relative
// path, size, mode and modification time. Contents are not read: output
// trees such as node_modules are far too large to hash on every build.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// absent is the digest recorded for a declared path that does not exist.
const absent = "absent"

// Paths fingerprints each path (relative paths resolve against root) in
// parallel and combines the digests in declaration order. An empty list
// yields an empty string.
func Paths(ctx context.Context, root string, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}

	digests := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			full := p
			if !filepath.IsAbs(full) {
				full = filepath.Join(root, p)
			}
			d, err := pathDigest(ctx, full)
			if err != nil {
				return fmt.Errorf("fingerprinting %s: %w", p, err)
			}
			digests[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	h := sha256.New()
	for i, p := range paths {
		writeField(h, p)
		writeField(h, digests[i])
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Strings digests an ordered list of strings, used for task configuration.
func Strings(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		writeField(h, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func pathDigest(ctx context.Context, root string) (string, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return absent, nil
	}
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if !info.IsDir() {
		writeEntry(h, ".", info)
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		writeEntry(h, filepath.ToSlash(rel), fi)
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeEntry(h hash.Hash, rel string, fi fs.FileInfo) {
	writeField(h, rel)
	writeField(h, fmt.Sprintf("%d:%o:%d", fi.Size(), fi.Mode(), fi.ModTime().UnixNano()))
}

func writeField(h hash.Hash, s string) {
	h.Write([]byte(s))
	h.Write([]byte{0})
}
