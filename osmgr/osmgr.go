// Package osmgr implements the SMP default (OS) group commands used by the
// host: echo and reset.
package osmgr

import (
	"context"
	"fmt"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/protocol"
	"github.com/moffa90/go-mcumgr/transfer"
)

// Manager issues OS group commands.
type Manager struct {
	r   transfer.Requester
	log logging.Logger
}

// New returns a Manager using r.
func New(r transfer.Requester, logger logging.Logger) *Manager {
	return &Manager{
		r:   r,
		log: logging.Component(logger, "os"),
	}
}

// Echo sends text and returns what the peripheral echoed back.
func (m *Manager) Echo(ctx context.Context, text string) (string, error) {
	req, err := protocol.BuildEchoCmd(text)
	if err != nil {
		return "", err
	}
	_, rsp, err := m.r.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("echo: %w", err)
	}
	echo, ok := rsp.(*protocol.EchoResponse)
	if !ok {
		return "", fmt.Errorf("echo: unexpected response %T", rsp)
	}
	return echo.R, nil
}

// Reset asks the peripheral to reboot.
//
// The peripheral may reboot before its response reaches the host, so a
// missing response is not an error: only a rejection by the peripheral is
// reported.
func (m *Manager) Reset(ctx context.Context) error {
	req, err := protocol.BuildResetCmd()
	if err != nil {
		return err
	}

	m.log.Info("resetting device")
	_, _, err = m.r.Do(ctx, req)
	switch {
	case err == nil:
		return nil
	case protocol.IsRemoteError(err):
		return fmt.Errorf("reset: %w", err)
	default:
		m.log.Debug("reset response lost", "error", err)
		return nil
	}
}
