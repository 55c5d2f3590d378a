//go:build darwin

package platform

import (
	"io/fs"
	"syscall"
	"time"
)

// AccessTime returns the last access time recorded in info.
// It falls back to the modification time when the access time is unavailable.
func AccessTime(info fs.FileInfo) time.Time {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(stat.Atimespec.Unix())
	}
	return info.ModTime()
}
