//go:build !windows

package watcher

import "os"

func allocationGranularity() int {
	return os.Getpagesize()
}
