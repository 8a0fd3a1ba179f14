package image

import (
	"bytes"
	"context"
	"fmt"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/protocol"
	"github.com/moffa90/go-mcumgr/transfer"
)

// Manager issues image management commands.
type Manager struct {
	r   transfer.Requester
	log logging.Logger
}

// New returns a Manager using r. *smp.Client implements transfer.Requester.
func New(r transfer.Requester, logger logging.Logger) *Manager {
	return &Manager{
		r:   r,
		log: logging.Component(logger, "image"),
	}
}

// State lists the image slots the peripheral reports.
func (m *Manager) State(ctx context.Context) ([]protocol.ImageSlot, error) {
	req, err := protocol.BuildImageStateReadCmd()
	if err != nil {
		return nil, err
	}
	return m.stateCmd(ctx, "read state", req)
}

// Test marks the image with hash to run once on the next boot.
func (m *Manager) Test(ctx context.Context, hash []byte) ([]protocol.ImageSlot, error) {
	req, err := protocol.BuildImageTestCmd(hash)
	if err != nil {
		return nil, err
	}
	m.log.Info("marking image for test", "hash", fmt.Sprintf("%x", hash))
	return m.stateCmd(ctx, "test", req)
}

// Confirm makes the image with hash permanent. A nil hash confirms the
// image currently running.
func (m *Manager) Confirm(ctx context.Context, hash []byte) ([]protocol.ImageSlot, error) {
	req, err := protocol.BuildImageConfirmCmd(hash)
	if err != nil {
		return nil, err
	}
	m.log.Info("confirming image", "hash", fmt.Sprintf("%x", hash))
	return m.stateCmd(ctx, "confirm", req)
}

// Erase clears the given slot.
func (m *Manager) Erase(ctx context.Context, slot uint32) error {
	req, err := protocol.BuildImageEraseCmd(slot)
	if err != nil {
		return err
	}
	m.log.Info("erasing slot", "slot", slot)
	if _, _, err := m.r.Do(ctx, req); err != nil {
		return fmt.Errorf("erase slot %d: %w", slot, err)
	}
	return nil
}

// Upload returns an idle session uploading data as image 0. The caller
// starts it.
func (m *Manager) Upload(data, sha []byte, opts ...transfer.Option) *transfer.Session {
	return transfer.NewUpload(m.r, UploadCodec{SHA: sha}, data, opts...)
}

func (m *Manager) stateCmd(ctx context.Context, op string, req *protocol.Envelope) ([]protocol.ImageSlot, error) {
	_, rsp, err := m.r.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("image %s: %w", op, err)
	}
	state, ok := rsp.(*protocol.ImageStateResponse)
	if !ok {
		return nil, fmt.Errorf("image %s: unexpected response %T", op, rsp)
	}
	return state.Images, nil
}

// Find returns the slot holding the image with hash.
func Find(slots []protocol.ImageSlot, hash []byte) (protocol.ImageSlot, bool) {
	for _, s := range slots {
		if bytes.Equal(s.Hash, hash) {
			return s, true
		}
	}
	return protocol.ImageSlot{}, false
}

// Active returns the slot of the running image.
func Active(slots []protocol.ImageSlot) (protocol.ImageSlot, bool) {
	for _, s := range slots {
		if s.Active {
			return s, true
		}
	}
	return protocol.ImageSlot{}, false
}
