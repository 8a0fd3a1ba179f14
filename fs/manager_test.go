package fs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-mcumgr/protocol"
	"github.com/moffa90/go-mcumgr/simulator"
	"github.com/moffa90/go-mcumgr/smp"
	"github.com/moffa90/go-mcumgr/transfer"
)

func newManager(t *testing.T, devOpts ...simulator.Option) (*simulator.Device, *Manager) {
	t.Helper()
	dev := simulator.New(devOpts...)
	client := smp.New(dev, smp.WithTimeout(time.Second))
	require.NoError(t, client.Connect(context.Background()))
	m := New(client, WithTransferOptions(transfer.WithRetryBackoff(time.Millisecond)))
	t.Cleanup(func() { m.Close() })
	return dev, m
}

func wait(t *testing.T, s *transfer.Session) transfer.Result {
	t.Helper()
	select {
	case <-s.Done():
		return s.Result()
	case <-time.After(10 * time.Second):
		t.Fatal("transfer did not finish")
		return transfer.Result{}
	}
}

func TestStatus(t *testing.T) {
	dev, m := newManager(t)
	dev.SetFile("/lfs/a.bin", make([]byte, 1234))

	for i := 0; i < 3; i++ {
		size, err := m.Status(context.Background(), "/lfs/a.bin")
		require.NoError(t, err)
		assert.Equal(t, int64(1234), size)
	}

	size, err := m.Status(context.Background(), "/lfs/missing")
	require.NoError(t, err)
	assert.Equal(t, NotFound, size)
	assert.False(t, m.Busy())
}

func TestStatusRemoteError(t *testing.T) {
	dev, m := newManager(t)
	dev.InjectError(protocol.GroupFS, protocol.FSCmdStatus, protocol.RCNoMemory)

	_, err := m.Status(context.Background(), "/lfs/a.bin")
	require.Error(t, err)
	assert.True(t, protocol.IsRemoteError(err))
	assert.False(t, m.Busy())
}

func TestHash(t *testing.T) {
	dev, m := newManager(t)
	data := []byte("hello hash")
	dev.SetFile("/lfs/h.txt", data)
	sum := sha256.Sum256(data)

	digest, ok, err := m.Hash(context.Background(), "/lfs/h.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, hex.EncodeToString(sum[:]), digest)

	digest, ok, err = m.Hash(context.Background(), "/lfs/none")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, digest)
}

func TestWriteAndDownload(t *testing.T) {
	dev, m := newManager(t)
	data := bytes.Repeat([]byte("0123456789"), 300)

	s, err := m.Write(context.Background(), "/lfs/cfg.bin", data)
	require.NoError(t, err)
	res := wait(t, s)
	require.Equal(t, transfer.Completed, res.State, "err: %v", res.Err)

	stored, ok := dev.File("/lfs/cfg.bin")
	require.True(t, ok)
	assert.Equal(t, data, stored)

	s, err = m.Download(context.Background(), "/lfs/cfg.bin")
	require.NoError(t, err)
	res = wait(t, s)
	require.Equal(t, transfer.Completed, res.State, "err: %v", res.Err)
	assert.Equal(t, data, res.Data)
	assert.False(t, m.Busy())
}

func TestUploadFromReader(t *testing.T) {
	dev, m := newManager(t)

	s, err := m.Upload(context.Background(), "/lfs/r.txt", bytes.NewReader([]byte("from a reader")))
	require.NoError(t, err)
	res := wait(t, s)
	require.Equal(t, transfer.Completed, res.State, "err: %v", res.Err)

	stored, _ := dev.File("/lfs/r.txt")
	assert.Equal(t, "from a reader", string(stored))
}

func TestBusyRejectsWithoutStarting(t *testing.T) {
	dev, m := newManager(t, simulator.WithLatency(5*time.Millisecond))
	dev.SetFile("/lfs/a.bin", []byte("abc"))
	data := bytes.Repeat([]byte{0xAA}, 4000)

	first, err := m.Write(context.Background(), "/lfs/big.bin", data, transfer.WithMaxChunkSize(64))
	require.NoError(t, err)
	assert.True(t, m.Busy())

	_, err = m.Write(context.Background(), "/lfs/other.bin", []byte("x"))
	assert.ErrorIs(t, err, ErrBusy)
	_, err = m.Status(context.Background(), "/lfs/a.bin")
	assert.ErrorIs(t, err, ErrBusy)
	_, _, err = m.Hash(context.Background(), "/lfs/a.bin")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = m.Download(context.Background(), "/lfs/a.bin")
	assert.ErrorIs(t, err, ErrBusy)

	res := wait(t, first)
	require.Equal(t, transfer.Completed, res.State, "err: %v", res.Err)
	stored, _ := dev.File("/lfs/big.bin")
	assert.Equal(t, data, stored)

	_, ok := dev.File("/lfs/other.bin")
	assert.False(t, ok, "rejected write was not started")
	assert.False(t, m.Busy())

	size, err := m.Status(context.Background(), "/lfs/big.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), size)
}

func TestDoneCallbackCanStartNextOperation(t *testing.T) {
	_, m := newManager(t)

	next := make(chan error, 1)
	s, err := m.Write(context.Background(), "/lfs/one", []byte("one"),
		transfer.WithDoneCallback(func(transfer.Result) {
			_, err := m.Status(context.Background(), "/lfs/one")
			next <- err
		}),
	)
	require.NoError(t, err)
	wait(t, s)

	select {
	case err := <-next:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("callback did not run")
	}
}

func TestCancel(t *testing.T) {
	_, m := newManager(t, simulator.WithLatency(10*time.Millisecond))

	s, err := m.Write(context.Background(), "/lfs/c.bin", make([]byte, 5000), transfer.WithMaxChunkSize(64))
	require.NoError(t, err)
	m.Cancel()

	res := wait(t, s)
	assert.Equal(t, transfer.Canceled, res.State)
	assert.False(t, m.Busy())

	// nothing running
	m.Cancel()
}

func TestReset(t *testing.T) {
	dev, m := newManager(t, simulator.WithLatency(10*time.Millisecond))
	dev.SetFile("/lfs/a.bin", []byte("abc"))

	s, err := m.Write(context.Background(), "/lfs/c.bin", make([]byte, 5000), transfer.WithMaxChunkSize(64))
	require.NoError(t, err)
	require.NoError(t, m.Reset())
	assert.Equal(t, transfer.Canceled, wait(t, s).State)

	require.NoError(t, m.Connect(context.Background()))
	size, err := m.Status(context.Background(), "/lfs/a.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
}

func TestClosed(t *testing.T) {
	_, m := newManager(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Status(context.Background(), "/x")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Write(context.Background(), "/x", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEmptyName(t *testing.T) {
	_, m := newManager(t)

	_, err := m.Write(context.Background(), "", []byte("x"))
	assert.Error(t, err)
	_, err = m.Status(context.Background(), "")
	assert.Error(t, err)
	assert.False(t, m.Busy())
}
