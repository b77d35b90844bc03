package samplestream

import (
	"os"
	"syscall"
)

// identityOf extracts a (device, inode) pair from a FileInfo on
// platforms exposing syscall.Stat_t, so ReadNew can detect an
// atomically-replaced file even when its size happens to coincide
// with the cursor's stored offset. When info.Sys() is not a
// *syscall.Stat_t the zero identity is returned, and rotation
// detection relies solely on the offset-exceeds-size check. This file
// names syscall.Stat_t directly, so it builds only on platforms whose
// syscall package defines that type (not Windows).
func identityOf(info os.FileInfo) FileIdentity {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return FileIdentity{}
	}
	return FileIdentity{Device: uint64(stat.Dev), Inode: uint64(stat.Ino)}
}
