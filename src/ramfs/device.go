package ramfs

import "github.com/mit-pdos/gokernel/src/defs"

// deviceBacking_i is the read/write behavior of a character device node,
// looked up by (major, minor) at mknod time (spec.md §6's device node
// table: /dev/null, /dev/zero, /dev/tty*, /dev/hda*). Only the memory
// devices have a backing; tty and disk nodes get none and read and write
// as plain files.
type deviceBacking_i interface {
	Read(pos int, buf []byte) (int, defs.Err_t)
	Write(pos int, buf []byte) (int, defs.Err_t)
}

type nullDevice struct{}

func (nullDevice) Read(int, []byte) (int, defs.Err_t)  { return 0, 0 }
func (nullDevice) Write(_ int, buf []byte) (int, defs.Err_t) { return len(buf), 0 }

type zeroDevice struct{}

func (zeroDevice) Read(_ int, buf []byte) (int, defs.Err_t) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), 0
}
func (zeroDevice) Write(_ int, buf []byte) (int, defs.Err_t) { return len(buf), 0 }

// deviceForMinor resolves the well-known memory-device minors from
// spec.md §6's DevMinorNull/DevMinorZero table. Any other (major, minor)
// pair gets no backing (nil), so such a node reads and writes as a plain
// file.
func deviceForMinor(major, minor int) deviceBacking_i {
	if major != defs.DevMajorMem {
		return nil
	}
	switch minor {
	case defs.DevMinorNull:
		return nullDevice{}
	case defs.DevMinorZero:
		return zeroDevice{}
	default:
		return nil
	}
}
