package storage

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/djherbis/times"
	"golang.org/x/crypto/blake2b"

	"github.com/lumenlib/lumen-server/internal/errors"
)

// maxCollisions bounds the " (n)" suffix search.
const maxCollisions = 10000

// creationTime returns the birth time when the platform records one, else the mtime, in ms.
func creationTime(path string, info os.FileInfo) int64 {
	ts, err := times.Stat(path)
	if err != nil {
		return info.ModTime().UnixMilli()
	}
	if ts.HasBirthTime() {
		return ts.BirthTime().UnixMilli()
	}
	return ts.ModTime().UnixMilli()
}

// hashFile returns the hex BLAKE2b-256 digest of the file's content.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Filesystemf(err, "open %s for hashing", path)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", errors.Internalf("init hash: %v", err)
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Filesystemf(err, "hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// uniqueDest picks dir/name, or "base (n).ext" when that is taken.
func uniqueDest(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	if _, err := os.Lstat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; n < maxCollisions; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", errors.Conflictf("no free name for %s in %s", name, dir)
}

// copyFile streams src into a new file at dst; dst must not exist.
// A partial dst is removed on failure.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy data: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync destination: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}

// moveFile renames src to dst, falling back to copy and delete across devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("move file: %w", err)
	}

	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("copy file across devices: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}
