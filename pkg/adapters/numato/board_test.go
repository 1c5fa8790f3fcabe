package numato

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModule emulates the module shell: it echoes each command, answers
// readall with the current mask and ends every reply with a prompt.
type fakeModule struct {
	mu       sync.Mutex
	pending  bytes.Buffer
	gpio     uint32
	commands []string
	silent   bool
}

func (f *fakeModule) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := strings.TrimSuffix(string(p), "\r")
	f.commands = append(f.commands, cmd)
	if f.silent {
		return len(p), nil
	}

	f.pending.WriteString(cmd + "\n\r")
	fields := strings.Fields(cmd)
	switch {
	case len(fields) == 2 && fields[1] == "readall":
		fmt.Fprintf(&f.pending, "%08x\n\r", f.gpio)
	case len(fields) == 3 && fields[1] == "set":
		i, _ := strconv.ParseInt(fields[2], 32, 64)
		f.gpio |= 1 << i
	case len(fields) == 3 && fields[1] == "clear":
		i, _ := strconv.ParseInt(fields[2], 32, 64)
		f.gpio &^= 1 << i
	}
	f.pending.WriteByte('>')
	return len(p), nil
}

func (f *fakeModule) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending.Len() == 0 {
		// Serial reads time out with zero bytes.
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	return f.pending.Read(p)
}

func (f *fakeModule) Close() error { return nil }

func TestBoard_ReadInputs(t *testing.T) {
	dev := &fakeModule{gpio: 0b1010 | 1<<20}
	b := New(dev)

	mask, err := b.ReadInputs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(0b1010), mask, "only the first 16 GPIOs are inputs")
	assert.Equal(t, []string{"gpio readall"}, dev.commands)
}

func TestBoard_SetOutputs(t *testing.T) {
	dev := &fakeModule{}
	b := New(dev, WithOutputBase(16))
	ctx := context.Background()

	require.NoError(t, b.SetOutputs(ctx, []int{6, 8}, true))
	assert.Equal(t, []string{"gpio set L", "gpio set N"}, dev.commands)
	assert.Equal(t, uint32(1<<21|1<<23), dev.gpio)

	require.NoError(t, b.SetOutput(ctx, 6, false))
	assert.Equal(t, uint32(1<<23), dev.gpio)

	err := b.SetOutputs(ctx, []int{0}, true)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBoard_Timeout(t *testing.T) {
	dev := &fakeModule{silent: true}
	b := New(dev, WithTimeout(20*time.Millisecond))

	_, err := b.ReadInputs(context.Background())
	assert.ErrorContains(t, err, "no reply")
}

func TestGPIOIndex(t *testing.T) {
	assert.Equal(t, "0", gpioIndex(0))
	assert.Equal(t, "9", gpioIndex(9))
	assert.Equal(t, "A", gpioIndex(10))
	assert.Equal(t, "V", gpioIndex(31))
}
