package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/xid"
)

// writeFileAtomic writes data to a hidden temp file next to dst and renames
// it into place. The temp file is removed on every failure path.
func writeFileAtomic(dst string, data []byte, perm os.FileMode) (err error) {
	dir, base := filepath.Split(dst)
	tmp := filepath.Join(dir, "."+base+"."+xid.New().String()+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write image: %w", err)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync image: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close image: %w", err)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("move image into place: %w", err)
	}
	return nil
}
