//go:build unix

package delivery

import "golang.org/x/sys/unix"

// sizeOnDisk returns the space allocated to path, in bytes.
func sizeOnDisk(path string) (int64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Blocks) * 512, nil
}
