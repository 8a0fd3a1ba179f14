package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/protocol"
	"github.com/moffa90/go-mcumgr/simulator"
	"github.com/moffa90/go-mcumgr/smp"
	"github.com/moffa90/go-mcumgr/transfer"
)

func setup(t *testing.T) (*simulator.Device, *smp.Client, *Manager) {
	t.Helper()
	dev := simulator.New(simulator.WithFirmware([]byte("running firmware"), "1.0.0"))
	client := smp.New(dev, smp.WithTimeout(time.Second))
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { client.Close() })
	return dev, client, New(client, logging.Nop())
}

func upload(t *testing.T, m *Manager, data []byte) transfer.Result {
	t.Helper()
	sum := sha256.Sum256(data)
	s := m.Upload(data, sum[:], transfer.WithMaxChunkSize(100))
	require.NoError(t, s.Start(context.Background()))
	select {
	case <-s.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("upload did not finish")
	}
	return s.Result()
}

func TestState(t *testing.T) {
	_, _, m := setup(t)

	slots, err := m.State(context.Background())
	require.NoError(t, err)
	require.Len(t, slots, 1)

	active, ok := Active(slots)
	require.True(t, ok)
	sum := sha256.Sum256([]byte("running firmware"))
	assert.Equal(t, sum[:], active.Hash)
	assert.Equal(t, "1.0.0", active.Version)
	assert.True(t, active.Confirmed)
}

func TestUploadTestAndConfirm(t *testing.T) {
	dev, client, m := setup(t)
	data := bytes.Repeat([]byte("new image "), 200)
	sum := sha256.Sum256(data)

	res := upload(t, m, data)
	require.Equal(t, transfer.Completed, res.State, "err: %v", res.Err)
	assert.Equal(t, data, dev.Image(1))

	slots, err := m.Test(context.Background(), sum[:])
	require.NoError(t, err)
	pending, ok := Find(slots, sum[:])
	require.True(t, ok)
	assert.True(t, pending.Pending)
	assert.False(t, pending.Permanent)
	assert.Equal(t, uint32(1), pending.Slot)

	// reboot into the test image
	reset, err := protocol.BuildResetCmd()
	require.NoError(t, err)
	_, _, _ = client.Do(context.Background(), reset)
	require.Eventually(t, func() bool { return dev.Resets() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "1.1.0", dev.ActiveVersion())
	assert.False(t, dev.Confirmed())

	require.NoError(t, client.Connect(context.Background()))
	slots, err = m.Confirm(context.Background(), nil)
	require.NoError(t, err)
	active, ok := Active(slots)
	require.True(t, ok)
	assert.Equal(t, sum[:], active.Hash)
	assert.True(t, active.Confirmed)
	assert.True(t, dev.Confirmed())
}

func TestUploadHashMismatch(t *testing.T) {
	_, _, m := setup(t)
	data := []byte("image content")
	wrong := sha256.Sum256([]byte("something else"))

	s := m.Upload(data, wrong[:])
	require.NoError(t, s.Start(context.Background()))
	res := s.Wait()
	require.Equal(t, transfer.Failed, res.State)
	assert.ErrorIs(t, res.Err, ErrHashMismatch)
}

func TestTestUnknownHash(t *testing.T) {
	_, _, m := setup(t)
	unknown := sha256.Sum256([]byte("never uploaded"))

	_, err := m.Test(context.Background(), unknown[:])
	assert.True(t, protocol.IsNoEntry(err))
}

func TestErase(t *testing.T) {
	dev, _, m := setup(t)

	res := upload(t, m, []byte("to be erased"))
	require.Equal(t, transfer.Completed, res.State)
	require.NotNil(t, dev.Image(1))

	require.NoError(t, m.Erase(context.Background(), 1))
	assert.Nil(t, dev.Image(1))

	slots, err := m.State(context.Background())
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestEraseRefusedWhilePending(t *testing.T) {
	_, _, m := setup(t)
	data := []byte("pending image")
	sum := sha256.Sum256(data)

	require.Equal(t, transfer.Completed, upload(t, m, data).State)
	_, err := m.Test(context.Background(), sum[:])
	require.NoError(t, err)

	err = m.Erase(context.Background(), 1)
	var remote *protocol.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, protocol.RCBadState, remote.Code)
}

func TestUploadCodec(t *testing.T) {
	sum := sha256.Sum256([]byte("x"))
	c := UploadCodec{Image: 0, SHA: sum[:]}
	assert.Equal(t, "image-0", c.Path())

	first, err := c.Chunk(0, []byte("x"), 1, true)
	require.NoError(t, err)
	var req protocol.ImageUploadRequest
	require.NoError(t, first.Unmarshal(&req))
	require.NotNil(t, req.Len)
	assert.Equal(t, uint64(1), *req.Len)
	assert.Equal(t, sum[:], req.SHA)

	next, err := c.Chunk(1, []byte("y"), 2, false)
	require.NoError(t, err)
	req = protocol.ImageUploadRequest{}
	require.NoError(t, next.Unmarshal(&req))
	assert.Nil(t, req.Len)
	assert.Nil(t, req.SHA)

	match := true
	off, err := c.Acked(&protocol.ImageUploadResponse{Off: 7, Match: &match})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), off)

	_, err = c.Acked(&protocol.EmptyResponse{})
	assert.Error(t, err)
}
