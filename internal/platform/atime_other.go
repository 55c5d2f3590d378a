//go:build !linux && !darwin

package platform

import (
	"io/fs"
	"time"
)

// AccessTime returns the modification time of info. Access times are not
// portable outside Linux and Darwin, and the cache updates both timestamps
// whenever it refreshes an entry.
func AccessTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}
