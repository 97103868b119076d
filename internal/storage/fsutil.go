package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	tempPrefix  = ".tmp-"
	trashPrefix = ".trash-"
)

// writeFileAtomic writes data next to path and renames it into place, so a crash
// mid-write leaves the previous file intact.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tempPrefix+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// copyIntoDir streams r into dir under a collision-free variant of name and
// returns the final path. Partial copies are removed on failure.
func copyIntoDir(dir, name string, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(dir, tempPrefix+"copy-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("copy %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close %s: %w", name, err)
	}

	final, err := uniquePath(dir, name)
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename %s: %w", final, err)
	}
	return final, nil
}

// uniquePath returns dir/name, or dir/stem_N.ext for the lowest N >= 1 that does
// not exist yet.
func uniquePath(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, stem+"_"+strconv.Itoa(n)+ext)
	}
}

var suffixPattern = regexp.MustCompile(`^_[0-9]+$`)

// isVariantOf reports whether candidate is name itself or a collision-renamed
// copy of it (stem_N.ext).
func isVariantOf(candidate, name string) bool {
	if candidate == name {
		return true
	}
	ext := filepath.Ext(name)
	if filepath.Ext(candidate) != ext {
		return false
	}
	stem := strings.TrimSuffix(name, ext)
	rest, ok := strings.CutPrefix(strings.TrimSuffix(candidate, ext), stem)
	return ok && suffixPattern.MatchString(rest)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// validFileName rejects names that would escape or alias their directory.
func validFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}
