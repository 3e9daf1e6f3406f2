package vfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
	"github.com/mit-pdos/gokernel/src/ramfs"
	"github.com/mit-pdos/gokernel/src/vfs"
)

func newSyscalls() (*vfs.Syscalls, *ramfs.Filesystem_t) {
	fs := ramfs.New(klog.Nop())
	root := fs.Root()
	return &vfs.Syscalls{
		Root: root,
		Fds:  vfs.NewFdtable(defs.MaxFds),
		Cwd:  &vfs.CWD{Vnode: root},
	}, fs
}

func TestOpenCreateReadWrite(t *testing.T) {
	s, _ := newSyscalls()

	fd, err := s.Open("/hello.txt", defs.OCreat|defs.OWrOnly, defs.VnodeRegular, 0, 0)
	require.EqualValues(t, 0, err)

	n, err := s.Write(fd, []byte("hi there"))
	require.EqualValues(t, 0, err)
	assert.Equal(t, 8, n)
	require.EqualValues(t, 0, s.Close(fd))

	fd, err = s.Open("/hello.txt", defs.ORdOnly, defs.VnodeRegular, 0, 0)
	require.EqualValues(t, 0, err)
	buf := make([]byte, 8)
	n, err = s.Read(fd, buf)
	require.EqualValues(t, 0, err)
	assert.Equal(t, "hi there", string(buf[:n]))
	require.EqualValues(t, 0, s.Close(fd))
}

func TestMkdirResolveDotDot(t *testing.T) {
	s, _ := newSyscalls()

	require.EqualValues(t, 0, s.Mkdir("/a"))
	require.EqualValues(t, 0, s.Mkdir("/a/b"))

	v, err := vfs.Resolve(s.Root, s.Cwd.Vnode, "a/b/../c")
	assert.EqualValues(t, defs.ENOENT, err)
	if err == 0 {
		v.Put()
	}

	require.EqualValues(t, 0, s.Mkdir("/a/c"))
	v, err = vfs.Resolve(s.Root, s.Cwd.Vnode, "a/b/../c")
	require.EqualValues(t, 0, err)
	v2, err2 := vfs.Resolve(s.Root, nil, "/a/c")
	require.EqualValues(t, 0, err2)
	assert.Equal(t, v.Inum, v2.Inum)
	v.Put()
	v2.Put()
}

func TestUnlinkDirectoryIsEPERM(t *testing.T) {
	s, _ := newSyscalls()
	require.EqualValues(t, 0, s.Mkdir("/d"))
	assert.EqualValues(t, defs.EPERM, s.Unlink("/d"))

	v, err := vfs.Resolve(s.Root, s.Cwd.Vnode, "/d")
	require.EqualValues(t, 0, err)
	assert.Equal(t, defs.VnodeDir, v.Type)
	v.Put()
}

func TestRmdirDotAndDotDot(t *testing.T) {
	s, _ := newSyscalls()
	require.EqualValues(t, 0, s.Mkdir("/d"))
	assert.EqualValues(t, defs.EINVAL, s.Rmdir("/d/."))
	assert.EqualValues(t, defs.ENOTEMPTY, s.Rmdir("/d/.."))
	require.EqualValues(t, 0, s.Rmdir("/d"))
}

func TestLinkThenUnlinkLeavesOriginalReadable(t *testing.T) {
	s, _ := newSyscalls()
	fd, err := s.Open("/a", defs.OCreat|defs.OWrOnly, defs.VnodeRegular, 0, 0)
	require.EqualValues(t, 0, err)
	_, err = s.Write(fd, []byte("data"))
	require.EqualValues(t, 0, err)
	require.EqualValues(t, 0, s.Close(fd))

	require.EqualValues(t, 0, s.Link("/a", "/b"))
	require.EqualValues(t, 0, s.Unlink("/b"))

	fd, err = s.Open("/a", defs.ORdOnly, defs.VnodeRegular, 0, 0)
	require.EqualValues(t, 0, err)
	buf := make([]byte, 4)
	n, err := s.Read(fd, buf)
	require.EqualValues(t, 0, err)
	assert.Equal(t, "data", string(buf[:n]))
	require.EqualValues(t, 0, s.Close(fd))
}

func TestChdirRelativeResolution(t *testing.T) {
	s, _ := newSyscalls()
	require.EqualValues(t, 0, s.Mkdir("/a"))
	require.EqualValues(t, 0, s.Chdir("/a"))

	fd, err := s.Open("in_a.txt", defs.OCreat|defs.OWrOnly, defs.VnodeRegular, 0, 0)
	require.EqualValues(t, 0, err)
	require.EqualValues(t, 0, s.Close(fd))

	v, err := vfs.Resolve(s.Root, s.Cwd.Vnode, "/a/in_a.txt")
	require.EqualValues(t, 0, err)
	v.Put()
}

func TestOpenDirectoryForWriteIsEISDIR(t *testing.T) {
	s, _ := newSyscalls()
	require.EqualValues(t, 0, s.Mkdir("/d"))
	_, err := s.Open("/d", defs.OWrOnly, defs.VnodeRegular, 0, 0)
	assert.EqualValues(t, defs.EISDIR, err)
}

func TestMknodCreatesCharAndBlockNodes(t *testing.T) {
	s, _ := newSyscalls()

	require.EqualValues(t, 0, s.Mknod("/null", defs.VnodeCharDev, defs.DevMajorMem, defs.DevMinorNull))
	v, err := vfs.Resolve(s.Root, s.Cwd.Vnode, "/null")
	require.EqualValues(t, 0, err)
	assert.Equal(t, defs.VnodeCharDev, v.Type)
	v.Put()

	require.EqualValues(t, 0, s.Mknod("/hda0", defs.VnodeBlockDev, defs.DevMajorDisk, 0))
	v, err = vfs.Resolve(s.Root, s.Cwd.Vnode, "/hda0")
	require.EqualValues(t, 0, err)
	assert.Equal(t, defs.VnodeBlockDev, v.Type)
	v.Put()
}

func TestMknodRejectsInvalidType(t *testing.T) {
	s, _ := newSyscalls()
	assert.EqualValues(t, defs.EINVAL, s.Mknod("/d", defs.VnodeDir, 0, 0))
}
