//go:build !unix

package delivery

import "os"

// sizeOnDisk returns the logical size of path. Allocated size is not
// available on this platform.
func sizeOnDisk(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
