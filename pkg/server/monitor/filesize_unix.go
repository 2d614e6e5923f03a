//go:build !windows

package monitor

import (
	"os"
	"syscall"
)

// getActualFileSize returns allocated blocks, so badger's sparse value log
// files are not overcounted.
func getActualFileSize(info os.FileInfo) int64 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return stat.Blocks * 512
	}
	return info.Size()
}
