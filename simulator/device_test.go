package simulator

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-mcumgr/protocol"
	"github.com/moffa90/go-mcumgr/transport"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type host struct {
	t      *testing.T
	dev    *Device
	frames chan []byte
}

func attach(t *testing.T, dev *Device) *host {
	t.Helper()
	h := &host{t: t, dev: dev, frames: make(chan []byte, 16)}
	unsubscribe := dev.Subscribe(func(f []byte) { h.frames <- f })
	t.Cleanup(unsubscribe)
	require.NoError(t, dev.Connect(context.Background()))
	return h
}

func (h *host) send(env *protocol.Envelope, err error) {
	h.t.Helper()
	require.NoError(h.t, err)
	frame, err := env.Encode()
	require.NoError(h.t, err)
	require.NoError(h.t, h.dev.Send(frame))
}

func (h *host) frame() []byte {
	h.t.Helper()
	select {
	case f := <-h.frames:
		return f
	case <-time.After(waitFor):
		h.t.Fatal("no frame received")
		return nil
	}
}

func (h *host) reply(v interface{}) {
	h.t.Helper()
	rsp, err := protocol.Decode(h.frame())
	require.NoError(h.t, err)
	require.NoError(h.t, rsp.Unmarshal(v))
}

func (h *host) silent() {
	h.t.Helper()
	select {
	case f := <-h.frames:
		h.t.Fatalf("unexpected frame %x", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEchoAndRequestLog(t *testing.T) {
	h := attach(t, New())

	h.send(protocol.BuildEchoCmd("hi"))
	var rsp protocol.EchoResponse
	h.reply(&rsp)
	assert.Equal(t, "hi", rsp.R)

	assert.Equal(t, 1, h.dev.Count(protocol.GroupOS, protocol.OSCmdEcho))
	require.Len(t, h.dev.Requests(), 1)
	assert.Equal(t, protocol.GroupOS, h.dev.Requests()[0].Group)
}

func TestFileCommands(t *testing.T) {
	h := attach(t, New(WithDownloadChunk(4)))

	h.send(protocol.BuildFileStatusCmd("/lfs/a"))
	var st protocol.FileStatusResponse
	h.reply(&st)
	assert.Equal(t, protocol.RCNoEntry, st.Code())

	h.dev.SetFile("/lfs/a", []byte("0123456789"))
	st = protocol.FileStatusResponse{}
	h.send(protocol.BuildFileStatusCmd("/lfs/a"))
	h.reply(&st)
	assert.Equal(t, protocol.RCOK, st.Code())
	assert.Equal(t, uint64(10), st.Len)

	h.send(protocol.BuildFileHashCmd("/lfs/a"))
	var hr protocol.FileHashResponse
	h.reply(&hr)
	sum := sha256.Sum256([]byte("0123456789"))
	assert.Equal(t, sum[:], hr.Output)
	assert.Equal(t, protocol.HashTypeSHA256, hr.Type)

	h.send(protocol.BuildFileDownloadCmd("/lfs/a", 0))
	var dr protocol.FileDownloadResponse
	h.reply(&dr)
	assert.Equal(t, []byte("0123"), dr.Data)
	require.NotNil(t, dr.Len)
	assert.Equal(t, uint64(10), *dr.Len)

	dr = protocol.FileDownloadResponse{}
	h.send(protocol.BuildFileDownloadCmd("/lfs/a", 8))
	h.reply(&dr)
	assert.Equal(t, []byte("89"), dr.Data)
	assert.Nil(t, dr.Len)

	h.dev.RemoveFile("/lfs/a")
	_, ok := h.dev.File("/lfs/a")
	assert.False(t, ok)
}

func TestFileUploadOffsets(t *testing.T) {
	h := attach(t, New())
	total := uint64(8)

	h.send(protocol.BuildFileUploadCmd("/lfs/b", 0, []byte("abcd"), &total))
	var ur protocol.FileUploadResponse
	h.reply(&ur)
	assert.Equal(t, uint64(4), ur.Off)

	// a chunk at the wrong offset is ignored and the held offset reported
	ur = protocol.FileUploadResponse{}
	h.send(protocol.BuildFileUploadCmd("/lfs/b", 6, []byte("gh"), nil))
	h.reply(&ur)
	assert.Equal(t, uint64(4), ur.Off)

	ur = protocol.FileUploadResponse{}
	h.send(protocol.BuildFileUploadCmd("/lfs/b", 4, []byte("efgh"), nil))
	h.reply(&ur)
	assert.Equal(t, uint64(8), ur.Off)

	data, ok := h.dev.File("/lfs/b")
	require.True(t, ok)
	assert.Equal(t, []byte("abcdefgh"), data)
}

func TestResetAndImageSwap(t *testing.T) {
	dev := New(WithUploadVersion("2.0.0"))
	h := attach(t, dev)

	image := []byte("new firmware image")
	sum := sha256.Sum256(image)
	total := uint64(len(image))

	h.send(protocol.BuildImageUploadCmd(0, 0, image, &total, sum[:]))
	var ur protocol.ImageUploadResponse
	h.reply(&ur)
	assert.Equal(t, total, ur.Off)
	require.NotNil(t, ur.Match)
	assert.True(t, *ur.Match)
	assert.Equal(t, image, dev.Image(1))

	h.send(protocol.BuildImageTestCmd(sum[:]))
	var sr protocol.ImageStateResponse
	h.reply(&sr)
	require.Len(t, sr.Images, 2)
	assert.True(t, sr.Images[1].Pending)

	h.send(protocol.BuildResetCmd())
	var er protocol.EmptyResponse
	h.reply(&er)
	assert.Equal(t, protocol.RCOK, er.Code())

	assert.Eventually(t, func() bool {
		return dev.Resets() == 1 && dev.State() == transport.Disconnected
	}, waitFor, tick)
	assert.Equal(t, "2.0.0", dev.ActiveVersion())
	assert.False(t, dev.Confirmed())

	// an unconfirmed test image reverts on the next reboot
	require.NoError(t, dev.Connect(context.Background()))
	h.send(protocol.BuildResetCmd())
	h.reply(&er)
	assert.Eventually(t, func() bool { return dev.Resets() == 2 }, waitFor, tick)
	assert.Equal(t, "1.0.0", dev.ActiveVersion())
	assert.True(t, dev.Confirmed())
}

func TestRebootDelayRefusesConnect(t *testing.T) {
	dev := New(WithRebootDelay(time.Hour))
	h := attach(t, dev)

	h.send(protocol.BuildResetCmd())
	h.frame()
	assert.Eventually(t, func() bool { return dev.State() == transport.Disconnected }, waitFor, tick)

	err := dev.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, transport.IsConnectError(err))
}

func TestHangUpAfterResetStillReboots(t *testing.T) {
	dev := New(WithLatency(50 * time.Millisecond))
	h := attach(t, dev)

	h.send(protocol.BuildResetCmd())
	require.NoError(t, dev.Disconnect())
	assert.Equal(t, 1, dev.Resets())
}

func TestFaults(t *testing.T) {
	t.Run("drop response", func(t *testing.T) {
		h := attach(t, New())
		h.dev.DropResponses(1)

		h.send(protocol.BuildEchoCmd("lost"))
		h.silent()

		h.send(protocol.BuildEchoCmd("back"))
		var rsp protocol.EchoResponse
		h.reply(&rsp)
		assert.Equal(t, "back", rsp.R)
	})

	t.Run("corrupt frame", func(t *testing.T) {
		h := attach(t, New())
		h.dev.CorruptNext(1)

		h.send(protocol.BuildEchoCmd("x"))
		_, err := protocol.Decode(h.frame())
		assert.Error(t, err)

		var rsp protocol.EchoResponse
		h.reply(&rsp)
		assert.Equal(t, "x", rsp.R)
	})

	t.Run("injected error", func(t *testing.T) {
		h := attach(t, New())
		h.dev.SetFile("/f", []byte{1})
		h.dev.InjectError(protocol.GroupFS, protocol.FSCmdStatus, protocol.RCBusy)

		var st protocol.FileStatusResponse
		h.send(protocol.BuildFileStatusCmd("/f"))
		h.reply(&st)
		assert.Equal(t, protocol.RCBusy, st.Code())

		st = protocol.FileStatusResponse{}
		h.send(protocol.BuildFileStatusCmd("/f"))
		h.reply(&st)
		assert.Equal(t, protocol.RCOK, st.Code())
	})

	t.Run("disconnect after", func(t *testing.T) {
		h := attach(t, New())
		h.dev.DisconnectAfter(1)

		h.send(protocol.BuildEchoCmd("x"))
		assert.Equal(t, transport.Disconnected, h.dev.State())
		assert.ErrorIs(t, h.dev.Send([]byte{0}), transport.ErrNotConnected)
		assert.Zero(t, h.dev.Count(protocol.GroupOS, protocol.OSCmdEcho))
	})

	t.Run("refuse connects", func(t *testing.T) {
		dev := New()
		dev.RefuseConnects(true)
		assert.Error(t, dev.Connect(context.Background()))

		dev.RefuseConnects(false)
		assert.NoError(t, dev.Connect(context.Background()))
	})

	t.Run("limit writes and stall", func(t *testing.T) {
		h := attach(t, New())
		total := uint64(16)

		h.dev.StallUploads(1)
		var ur protocol.FileUploadResponse
		h.send(protocol.BuildFileUploadCmd("/g", 0, make([]byte, 16), &total))
		h.reply(&ur)
		assert.Zero(t, ur.Off)

		h.dev.LimitWrites(5)
		ur = protocol.FileUploadResponse{}
		h.send(protocol.BuildFileUploadCmd("/g", 0, make([]byte, 16), &total))
		h.reply(&ur)
		assert.Equal(t, uint64(5), ur.Off)
	})

	t.Run("mtu change", func(t *testing.T) {
		dev := New(WithMTU(512))
		assert.Equal(t, 512, dev.MTU())
		dev.SetMTU(128)
		assert.Equal(t, 128, dev.MTU())
	})
}
