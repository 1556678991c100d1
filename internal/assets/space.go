package assets

import (
	"fmt"

	"golang.org/x/sys/unix"

	"montage/internal/pkg/errors"
)

// FreeBytes reports the space available to unprivileged users under dir.
func FreeBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// EnsureFree fails with an INSUFFICIENT_STORAGE error when dir has less
// than min bytes available. A non-positive min disables the check.
func EnsureFree(dir string, min int64) error {
	if min <= 0 {
		return nil
	}
	free, err := FreeBytes(dir)
	if err != nil {
		return errors.Resource(err, "assets.space", "cannot stat working directory")
	}
	if free < uint64(min) {
		return errors.New(errors.CodeStorageFull, fmt.Sprintf("insufficient local storage: %d bytes free, %d required", free, min)).
			WithField("free_bytes", free).
			WithField("min_bytes", min)
	}
	return nil
}
