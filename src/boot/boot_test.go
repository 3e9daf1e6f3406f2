package boot

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
	"github.com/mit-pdos/gokernel/src/proc"
	"github.com/mit-pdos/gokernel/src/sched"
)

func TestDefaultConfigMountsWellKnownDevices(t *testing.T) {
	cfg := DefaultConfig()
	var names []string
	for _, d := range cfg.Devices {
		names = append(names, d.Path)
	}
	assert.Contains(t, names, "null")
	assert.Contains(t, names, "zero")
	assert.Contains(t, names, "tty0")
	assert.Contains(t, names, "hda0")
}

func TestLoadConfigNilFallsBackToDefault(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Devices, cfg.Devices)
}

func TestLoadConfigYAMLOverridesDeviceTable(t *testing.T) {
	yamlDoc := `
num_ttys: 0
num_disks: 0
devices:
  - path: "null"
    kind: char
    major: 1
    minor: 0
`
	cfg, err := LoadConfig(strings.NewReader(yamlDoc))
	require.NoError(t, err)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "null", cfg.Devices[0].Path)
}

func TestBootCreatesInitAndDeviceNodes(t *testing.T) {
	initRan := make(chan struct{}, 1)
	kernelReady := make(chan *Kernel, 1)

	k, err := Boot(DefaultConfig(), klog.Nop(), func(th *sched.Thread_t) {
		p := th.Owner.(*proc.Proc_t)
		initRan <- struct{}{}
		kern := <-kernelReady
		kern.Procs.Exit(p, 0)
	})
	require.EqualValues(t, 0, err)
	require.NotNil(t, k.Init)
	assert.Equal(t, defs.InitPid, k.Init.Pid)
	kernelReady <- k

	select {
	case <-initRan:
	case <-time.After(time.Second):
		t.Fatal("init thread never ran")
	}

	root := k.FS.Root()
	defer root.Put()
	root.Lock()
	dev, lerr := k.FS.Lookup(root, "dev")
	root.Unlock()
	require.EqualValues(t, 0, lerr)
	defer dev.Put()

	dev.Lock()
	v, lerr := k.FS.Lookup(dev, "null")
	dev.Unlock()
	require.EqualValues(t, 0, lerr)
	assert.Equal(t, defs.VnodeCharDev, v.Type)
	v.Put()

	dev.Lock()
	v, lerr = k.FS.Lookup(dev, "hda0")
	dev.Unlock()
	require.EqualValues(t, 0, lerr)
	assert.Equal(t, defs.VnodeBlockDev, v.Type)
	v.Put()
}
