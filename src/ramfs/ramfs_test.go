package ramfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
)

func TestMkdirRmdirRoundTrip(t *testing.T) {
	fs := New(klog.Nop())
	root := fs.Root()
	defer root.Put()

	root.Lock()
	d, err := fs.Mkdir(root, "sub")
	root.Unlock()
	require.EqualValues(t, 0, err)
	d.Put()

	root.Lock()
	_, err = fs.Lookup(root, "sub")
	root.Unlock()
	require.EqualValues(t, 0, err)

	root.Lock()
	err = fs.Rmdir(root, "sub")
	root.Unlock()
	require.EqualValues(t, 0, err)

	root.Lock()
	_, err = fs.Lookup(root, "sub")
	root.Unlock()
	assert.EqualValues(t, defs.ENOENT, err)
}

func TestLinkUnlinkPreservesOriginal(t *testing.T) {
	fs := New(klog.Nop())
	root := fs.Root()
	defer root.Put()

	root.Lock()
	a, err := fs.Create(root, "a", defs.VnodeRegular)
	root.Unlock()
	require.EqualValues(t, 0, err)

	a.Lock()
	_, err = fs.Write(a, 0, []byte("hello"))
	a.Unlock()
	require.EqualValues(t, 0, err)

	root.Lock()
	err = fs.Link(root, "b", a)
	root.Unlock()
	require.EqualValues(t, 0, err)

	root.Lock()
	err = fs.Unlink(root, "b")
	root.Unlock()
	require.EqualValues(t, 0, err)

	buf := make([]byte, 5)
	a.Lock()
	n, err := fs.Read(a, 0, buf)
	a.Unlock()
	require.EqualValues(t, 0, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
	a.Put()
}

func TestReaddirStableOrder(t *testing.T) {
	fs := New(klog.Nop())
	root := fs.Root()
	defer root.Put()

	root.Lock()
	for _, name := range []string{"x", "y", "z"} {
		v, err := fs.Create(root, name, defs.VnodeRegular)
		require.EqualValues(t, 0, err)
		v.Put()
	}
	root.Unlock()

	var got []string
	for pos := 0; ; pos++ {
		root.Lock()
		d, adv, err := fs.Readdir(root, pos)
		root.Unlock()
		if err != 0 {
			break
		}
		got = append(got, d.Name)
		pos += adv - 1
	}
	assert.Equal(t, []string{"x", "y", "z"}, got)
}

func TestDeviceNodesReadWrite(t *testing.T) {
	fs := New(klog.Nop())
	root := fs.Root()
	defer root.Put()

	root.Lock()
	null, err := fs.Mknod(root, "null", defs.VnodeCharDev, defs.DevMajorMem, defs.DevMinorNull)
	root.Unlock()
	require.EqualValues(t, 0, err)

	null.Lock()
	n, err := fs.Write(null, 0, []byte("discarded"))
	require.EqualValues(t, 0, err)
	assert.Equal(t, len("discarded"), n)

	buf := make([]byte, 4)
	n, err = fs.Read(null, 0, buf)
	require.EqualValues(t, 0, err)
	assert.Equal(t, 0, n)
	null.Unlock()
	null.Put()

	root.Lock()
	zero, err := fs.Mknod(root, "zero", defs.VnodeCharDev, defs.DevMajorMem, defs.DevMinorZero)
	root.Unlock()
	require.EqualValues(t, 0, err)

	zero.Lock()
	buf = []byte{1, 2, 3}
	n, err = fs.Read(zero, 0, buf)
	zero.Unlock()
	require.EqualValues(t, 0, err)
	assert.Equal(t, []byte{0, 0, 0}, buf)
	zero.Put()
}

func TestRmdirOfNonDirectoryIsENOTDIR(t *testing.T) {
	fs := New(klog.Nop())
	root := fs.Root()
	defer root.Put()

	root.Lock()
	f, err := fs.Create(root, "f", defs.VnodeRegular)
	root.Unlock()
	require.EqualValues(t, 0, err)
	f.Put()

	root.Lock()
	err = fs.Rmdir(root, "f")
	root.Unlock()
	assert.EqualValues(t, defs.ENOTDIR, err)
}

func TestMknodBlockDeviceGetsBlockDevType(t *testing.T) {
	fs := New(klog.Nop())
	root := fs.Root()
	defer root.Put()

	root.Lock()
	hda0, err := fs.Mknod(root, "hda0", defs.VnodeBlockDev, defs.DevMajorDisk, 0)
	root.Unlock()
	require.EqualValues(t, 0, err)
	assert.Equal(t, defs.VnodeBlockDev, hda0.Type)
	hda0.Put()
}
