//go:build windows

package monitor

import "os"

// getActualFileSize returns the logical size; Windows does not expose block
// counts through os.FileInfo.
func getActualFileSize(info os.FileInfo) int64 {
	return info.Size()
}
