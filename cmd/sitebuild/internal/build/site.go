package build

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/incremental"
)

// ModifiedFilesName is written to the target root and lists the site paths
// rewritten or deleted by a build.
const ModifiedFilesName = "modified_files.txt"

// sitePath converts a site-relative slash path to a path below root.
func sitePath(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// outputsExist reports whether every recorded output of an asset is present.
func outputsExist(root string, outputs []string) bool {
	if len(outputs) == 0 {
		return false
	}
	for _, out := range outputs {
		if !fileExists(sitePath(root, out)) {
			return false
		}
	}
	return true
}

// copyFile copies src to dst through a temp file in dst's directory, so a
// reader never observes a partially written artifact.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// moveFile renames src to dst, falling back to copy and remove.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// sameContent reports whether two files have identical bytes.
func sameContent(a, b string) bool {
	da, err := os.ReadFile(a)
	if err != nil {
		return false
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false
	}
	return bytes.Equal(da, db)
}

// removeEmptyParents removes empty directories from dir up to (not
// including) root.
func removeEmptyParents(root, dir string) {
	root = filepath.Clean(root)
	for dir = filepath.Clean(dir); dir != root && within(root, dir); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

// listFiles returns the slash paths of regular files below dir.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	slices.Sort(files)
	return files, err
}

// pruneUnowned deletes files below root that are not in keep, skipping the
// state directory. It returns the deleted slash paths.
func pruneUnowned(root string, keep map[string]bool) ([]string, error) {
	var removed []string
	var dirs []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == incremental.StateDir {
				return filepath.SkipDir
			}
			if rel != "." {
				dirs = append(dirs, p)
			}
			return nil
		}
		if keep[rel] {
			return nil
		}
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("failed to prune %s: %w", rel, err)
		}
		removed = append(removed, rel)
		return nil
	})

	// Deepest first so emptied parents go too.
	slices.SortFunc(dirs, func(a, b string) int {
		return strings.Count(b, string(filepath.Separator)) - strings.Count(a, string(filepath.Separator))
	})
	for _, d := range dirs {
		_ = os.Remove(d)
	}
	return removed, err
}
