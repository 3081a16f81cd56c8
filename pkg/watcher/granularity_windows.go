//go:build windows

package watcher

// allocationGranularity is the VirtualAlloc reservation granularity, which
// is 64 KiB on every supported Windows release.
func allocationGranularity() int {
	return 64 * 1024
}
