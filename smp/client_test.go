package smp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-mcumgr/protocol"
	"github.com/moffa90/go-mcumgr/simulator"
	"github.com/moffa90/go-mcumgr/transport"
)

func newConnected(t *testing.T, dev *simulator.Device, opts ...Option) *Client {
	t.Helper()
	c := New(dev, opts...)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func echo(t *testing.T, text string) *protocol.Envelope {
	t.Helper()
	env, err := protocol.BuildEchoCmd(text)
	require.NoError(t, err)
	return env
}

func TestDoEcho(t *testing.T) {
	dev := simulator.New()
	c := newConnected(t, dev)

	env, rsp, err := c.Do(context.Background(), echo(t, "hello"))
	require.NoError(t, err)
	assert.Equal(t, protocol.OpWriteRsp, env.Header.Op)
	require.IsType(t, &protocol.EchoResponse{}, rsp)
	assert.Equal(t, "hello", rsp.(*protocol.EchoResponse).R)

	_, _, err = c.Do(context.Background(), echo(t, "again"))
	require.NoError(t, err)

	reqs := dev.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, uint16(0), reqs[0].Seq)
	assert.Equal(t, uint16(1), reqs[1].Seq)
}

func TestDoSequenceWraps(t *testing.T) {
	dev := simulator.New()
	c := newConnected(t, dev)
	c.seq = 0xFFFF

	for i := 0; i < 2; i++ {
		_, _, err := c.Do(context.Background(), echo(t, "x"))
		require.NoError(t, err)
	}

	reqs := dev.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, uint16(0xFFFF), reqs[0].Seq)
	assert.Equal(t, uint16(0), reqs[1].Seq)
}

func TestDoRemoteError(t *testing.T) {
	tests := []struct {
		name string
		rc   protocol.ReturnCode
	}{
		{name: "no entry", rc: protocol.RCNoEntry},
		{name: "out of memory", rc: protocol.RCNoMemory},
		{name: "not supported", rc: protocol.RCNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := simulator.New()
			c := newConnected(t, dev)
			dev.InjectError(protocol.GroupOS, protocol.OSCmdEcho, tt.rc)

			_, rsp, err := c.Do(context.Background(), echo(t, "x"))
			require.Error(t, err)
			assert.NotNil(t, rsp)

			var re *protocol.RemoteError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.rc, re.Code)
			assert.False(t, transport.IsLinkError(err))
		})
	}
}

func TestDoTimeout(t *testing.T) {
	dev := simulator.New()
	c := newConnected(t, dev, WithTimeout(50*time.Millisecond))
	dev.DropResponses(1)

	_, _, err := c.Do(context.Background(), echo(t, "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, uint64(1), c.Stats().Timeouts)

	_, _, err = c.Do(context.Background(), echo(t, "y"))
	assert.NoError(t, err, "client keeps working after a timeout")
}

func TestDoSurvivesCorruptFrame(t *testing.T) {
	dev := simulator.New()
	c := newConnected(t, dev)
	dev.CorruptNext(1)

	_, rsp, err := c.Do(context.Background(), echo(t, "still here"))
	require.NoError(t, err)
	assert.Equal(t, "still here", rsp.(*protocol.EchoResponse).R)
	assert.Equal(t, uint64(1), c.Stats().DecodeErrors)
	assert.Equal(t, transport.Connected, dev.State())
}

func TestUnmatchedResponseDropped(t *testing.T) {
	dev := simulator.New()
	c := newConnected(t, dev)

	stray, err := protocol.NewResponse(echo(t, "x").WithSeq(42), &protocol.EchoResponse{R: "stray"})
	require.NoError(t, err)
	frame, err := stray.Encode()
	require.NoError(t, err)
	dev.Deliver(frame)

	assert.Equal(t, uint64(1), c.Stats().Dropped)

	_, rsp, err := c.Do(context.Background(), echo(t, "mine"))
	require.NoError(t, err)
	assert.Equal(t, "mine", rsp.(*protocol.EchoResponse).R)
}

func TestDoLinkLossAndReconnect(t *testing.T) {
	dev := simulator.New()
	c := newConnected(t, dev)
	dev.DisconnectAfter(1)

	_, _, err := c.Do(context.Background(), echo(t, "lost"))
	require.Error(t, err)
	assert.True(t, transport.IsLinkError(err))
	assert.Equal(t, transport.Disconnected, dev.State())

	_, _, err = c.Do(context.Background(), echo(t, "back"))
	require.NoError(t, err)
	assert.Equal(t, transport.Connected, dev.State())
}

func TestDoWithoutAutoReconnect(t *testing.T) {
	dev := simulator.New()
	c := newConnected(t, dev, WithAutoReconnect(false))
	require.NoError(t, dev.Disconnect())

	_, _, err := c.Do(context.Background(), echo(t, "x"))
	require.Error(t, err)
	assert.True(t, transport.IsLinkError(err))
}

func TestReconnectFailureIsLinkError(t *testing.T) {
	dev := simulator.New()
	c := newConnected(t, dev)
	require.NoError(t, dev.Disconnect())
	dev.RefuseConnects(true)

	_, _, err := c.Do(context.Background(), echo(t, "x"))
	require.Error(t, err)
	assert.True(t, transport.IsLinkError(err))
	assert.True(t, transport.IsConnectError(err))
}

func TestConnectError(t *testing.T) {
	dev := simulator.New()
	dev.RefuseConnects(true)
	c := New(dev)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, transport.IsConnectError(err))

	_, _, err = c.Do(context.Background(), echo(t, "x"))
	assert.True(t, transport.IsLinkError(err), "never connected, so no automatic reconnect")
}

func TestConcurrentRequestsAreSerialized(t *testing.T) {
	dev := simulator.New(simulator.WithLatency(time.Millisecond))
	c := newConnected(t, dev)

	req := echo(t, "x")
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.Do(context.Background(), req)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, dev.Requests(), 10)
}

func TestDoAfterClose(t *testing.T) {
	dev := simulator.New()
	c := New(dev)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, _, err := c.Do(context.Background(), echo(t, "x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrNotConnected) || errors.Is(err, ErrClosed))
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
}

func TestDoContextCanceled(t *testing.T) {
	dev := simulator.New()
	c := newConnected(t, dev)
	dev.DropResponses(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := c.Do(ctx, echo(t, "x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
