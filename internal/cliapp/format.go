package cliapp

import (
	"fmt"

	"github.com/objfsd/objfsd/internal/posix"
)

// typeChar mirrors ls.cpp's formatType: one character per FileType, `ls
// -l` style.
func typeChar(t posix.FileType) byte {
	switch t {
	case posix.TypeDirectory:
		return 'd'
	case posix.TypeSymlink:
		return 'l'
	case posix.TypeBlockDev:
		return 'b'
	case posix.TypeCharDev:
		return 'c'
	case posix.TypeFifo:
		return 'p'
	case posix.TypeSocket:
		return 's'
	default:
		return '-'
	}
}

// formatMode renders a PosixAttr's type and permission bits the way
// ls.cpp's formatMode does: one type char followed by the nine
// owner/group/other rwx bits and the set-uid/gid/sticky overlays.
func formatMode(attr posix.PosixAttr) string {
	buf := make([]byte, 10)
	buf[0] = typeChar(attr.Type)
	bits := []struct {
		mode uint32
		ch   byte
	}{
		{posix.ModeRUser, 'r'}, {posix.ModeWUser, 'w'}, {posix.ModeXUser, 'x'},
		{posix.ModeRGroup, 'r'}, {posix.ModeWGroup, 'w'}, {posix.ModeXGroup, 'x'},
		{posix.ModeROther, 'r'}, {posix.ModeWOther, 'w'}, {posix.ModeXOther, 'x'},
	}
	for i, b := range bits {
		if attr.Mode&b.mode != 0 {
			buf[i+1] = b.ch
		} else {
			buf[i+1] = '-'
		}
	}
	if attr.Mode&posix.ModeSetUID != 0 {
		buf[3] = 's'
	}
	if attr.Mode&posix.ModeSetGID != 0 {
		buf[6] = 's'
	}
	if attr.Mode&posix.ModeSticky != 0 {
		buf[9] = 't'
	}
	return string(buf)
}

func formatTime(attr posix.PosixAttr) string {
	return attr.Mtime.Format("Jan _2 15:04")
}

func formatLong(name string, attr posix.PosixAttr, linkTarget string) string {
	s := fmt.Sprintf("%s %4d %6d %6d %10d %s %s",
		formatMode(attr), attr.Nlink, attr.UID, attr.GID, attr.Size, formatTime(attr), name)
	if attr.Type == posix.TypeSymlink && linkTarget != "" {
		s += " -> " + linkTarget
	}
	return s
}
