package ble

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/protocol"
	"github.com/moffa90/go-mcumgr/transport"
)

type fakeLink struct {
	mu       sync.Mutex
	mtu      int
	writes   [][]byte
	failNext bool
	closed   bool
}

func (f *fakeLink) write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return errors.New("gatt write failed")
	}
	f.writes = append(f.writes, append([]byte{}, p...))
	return nil
}

func (f *fakeLink) attMTU() int { return f.mtu }

func (f *fakeLink) close() error {
	f.closed = true
	return nil
}

func newTestTransport(link *fakeLink) (*Transport, *func([]byte)) {
	var notify func([]byte)
	tr := New(Config{Address: "AA:BB:CC:DD:EE:FF"}, logging.Nop())
	tr.dial = func(_ context.Context, _ Config, onNotify func([]byte)) (gattLink, error) {
		notify = onNotify
		return link, nil
	}
	return tr, &notify
}

func testFrame(t *testing.T) []byte {
	t.Helper()
	env, err := protocol.BuildFileUploadCmd("/lfs/large.bin", 0, make([]byte, 100), nil)
	require.NoError(t, err)
	frame, err := env.Encode()
	require.NoError(t, err)
	return frame
}

func TestSendSplitsByATTPayload(t *testing.T) {
	link := &fakeLink{mtu: 23}
	tr, _ := newTestTransport(link)
	require.NoError(t, tr.Connect(context.Background()))

	frame := testFrame(t)
	require.NoError(t, tr.Send(frame))

	var joined []byte
	for _, w := range link.writes {
		assert.LessOrEqual(t, len(w), 20)
		joined = append(joined, w...)
	}
	assert.Equal(t, frame, joined)
	assert.Len(t, link.writes, (len(frame)+19)/20)
}

func TestNotificationsReassembled(t *testing.T) {
	link := &fakeLink{mtu: 247}
	tr, notify := newTestTransport(link)

	var got [][]byte
	tr.Subscribe(func(f []byte) { got = append(got, f) })
	require.NoError(t, tr.Connect(context.Background()))

	frame := testFrame(t)
	(*notify)(frame[:30])
	assert.Empty(t, got)
	(*notify)(frame[30:])

	require.Len(t, got, 1)
	assert.Equal(t, frame, got[0])
}

func TestWriteFailureDropsLink(t *testing.T) {
	link := &fakeLink{mtu: 247}
	tr, _ := newTestTransport(link)

	var states []transport.State
	tr.Watch(func(s transport.State) { states = append(states, s) })
	require.NoError(t, tr.Connect(context.Background()))

	link.failNext = true
	err := tr.Send(testFrame(t))
	require.Error(t, err)
	assert.True(t, transport.IsLinkError(err))
	assert.True(t, link.closed)
	assert.Equal(t, transport.Disconnected, tr.State())
	assert.Equal(t, []transport.State{transport.Connecting, transport.Connected, transport.Disconnected}, states)

	assert.ErrorIs(t, tr.Send([]byte{1}), transport.ErrNotConnected)
}

func TestConnectFailure(t *testing.T) {
	tr := New(Config{Address: "AA"}, nil)
	tr.dial = func(context.Context, Config, func([]byte)) (gattLink, error) {
		return nil, errors.New("peripheral not found")
	}

	err := tr.Connect(context.Background())
	assert.True(t, transport.IsConnectError(err))
	assert.NoError(t, tr.Disconnect())
}
