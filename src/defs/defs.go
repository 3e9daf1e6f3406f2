// Package defs centralizes the value types and constants shared across
// every kernel subsystem, mirroring the teacher's own defs package: no
// subsystem logic lives here, only the vocabulary the other packages agree
// on.
package defs

import "golang.org/x/sys/unix"

type Tid_t int
type Pid_t int32
type Inum_t int64

const (
	PageShift = 12
	PageSize  = 1 << PageShift

	// USER_LOW/USER_HIGH bound every vmarea and every brk region.
	UserLow  = uintptr(0x400000)
	UserHigh = uintptr(0x00007f0000000000)

	// pid 0 is reserved for the idle process, pid 1 for init.
	IdlePid = Pid_t(0)
	InitPid = Pid_t(1)
	MaxPid  = Pid_t(1 << 15)

	NameMax = 255

	// number of descriptor-table slots per process.
	MaxFds = 128
)

// Protection bits for a vmarea, expressed as the real POSIX mmap() bits
// (golang.org/x/sys/unix) rather than ad hoc kernel constants, so a
// user-mode stub can pass its mmap(2) flags straight through.
const (
	ProtNone  = 0
	ProtRead  = unix.PROT_READ
	ProtWrite = unix.PROT_WRITE
	ProtExec  = unix.PROT_EXEC
)

// vmarea sharing flags.
const (
	MapShared  = unix.MAP_SHARED
	MapPrivate = unix.MAP_PRIVATE
	MapFixed   = unix.MAP_FIXED
	MapAnon    = unix.MAP_ANON
)

// open(2) flags, real POSIX bit values.
const (
	ORdOnly = unix.O_RDONLY
	OWrOnly = unix.O_WRONLY
	ORdWr   = unix.O_RDWR
	OCreat  = unix.O_CREAT
	OTrunc  = unix.O_TRUNC
	OAppend = unix.O_APPEND
	OAccMode = unix.O_ACCMODE
)

// lseek(2) whence values.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// pagefault cause bits, matching the vm layer's Cause_t.
type FaultCause uint

const (
	FaultUser FaultCause = 1 << iota
	FaultWrite
	FaultExec
)

// device major numbers, matching the teacher's D_* table and spec.md §6's
// device node layout.
const (
	DevMajorMem  = 1 // /dev/null, /dev/zero (minor selects which)
	DevMajorTTY  = 2 // /dev/tty0..N-1
	DevMajorDisk = 3 // /dev/hda0..D-1

	DevMinorNull = 0
	DevMinorZero = 1
)

// VnodeType enumerates the vnode types spec.md §3 requires.
type VnodeType int

const (
	VnodeRegular VnodeType = iota
	VnodeDir
	VnodeCharDev
	VnodeBlockDev
	VnodeLink
)

// FindDir chooses which end of a gap search find_range scans from.
type FindDir int

const (
	LowToHigh FindDir = iota
	HighToLow
)
