package patch

import (
	"os"
	"path/filepath"
	"strings"
)

// saveAtomic replaces dest with the output of save. save writes to a temp
// file in dest's directory; the file is synced and then renamed over dest,
// so readers see either the old or the new document. release runs after the
// temp file is complete and before the rename, to drop handles on dest.
func saveAtomic(dest string, save func(path string) error, release func() error) error {
	dir := filepath.Dir(dest)
	stem := strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest))
	tmp, err := os.CreateTemp(dir, "."+stem+"-*.pdf")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if info, err := os.Stat(dest); err == nil {
		_ = os.Chmod(tmpPath, info.Mode().Perm())
	}

	if err := save(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := syncFile(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if release != nil {
		if err := release(); err != nil {
			_ = os.Remove(tmpPath)
			return err
		}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// best effort: persist the rename
	_ = syncDir(dir)
	return nil
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
