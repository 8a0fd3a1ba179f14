package osmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/protocol"
	"github.com/moffa90/go-mcumgr/simulator"
	"github.com/moffa90/go-mcumgr/smp"
)

func setup(t *testing.T) (*simulator.Device, *Manager) {
	t.Helper()
	dev := simulator.New()
	client := smp.New(dev, smp.WithTimeout(200*time.Millisecond), smp.WithAutoReconnect(false))
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { client.Close() })
	return dev, New(client, logging.Nop())
}

func TestEcho(t *testing.T) {
	_, m := setup(t)

	tests := []string{"hello", "", "ünïcode"}
	for _, text := range tests {
		got, err := m.Echo(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
}

func TestEchoRemoteError(t *testing.T) {
	dev, m := setup(t)
	dev.InjectError(protocol.GroupOS, protocol.OSCmdEcho, protocol.RCNotSupported)

	_, err := m.Echo(context.Background(), "x")
	var remote *protocol.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, protocol.RCNotSupported, remote.Code)
}

func TestReset(t *testing.T) {
	dev, m := setup(t)

	require.NoError(t, m.Reset(context.Background()))
	assert.Eventually(t, func() bool { return dev.Resets() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestResetToleratesLostResponse(t *testing.T) {
	dev, m := setup(t)
	dev.DropResponses(1)

	assert.NoError(t, m.Reset(context.Background()))
}

func TestResetRejected(t *testing.T) {
	dev, m := setup(t)
	dev.InjectError(protocol.GroupOS, protocol.OSCmdReset, protocol.RCBusy)

	err := m.Reset(context.Background())
	require.Error(t, err)
	assert.True(t, protocol.IsRemoteError(err))
	assert.Equal(t, 0, dev.Resets())
}
