//go:build linux

package vfs

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func statTimes(info os.FileInfo) (atime, ctime time.Time) {
	st, ok := info.Sys().(*unix.Stat_t)
	if !ok {
		return info.ModTime(), info.ModTime()
	}
	return time.Unix(st.Atim.Sec, st.Atim.Nsec), time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
}
