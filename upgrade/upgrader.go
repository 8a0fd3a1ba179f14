package upgrade

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-mcumgr/firmware"
	"github.com/moffa90/go-mcumgr/image"
	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/osmgr"
	"github.com/moffa90/go-mcumgr/transfer"
)

// secondarySlot is the slot a new image is uploaded to.
const secondarySlot = 1

// Client is the connection the workflow drives. *smp.Client implements it.
type Client interface {
	transfer.Requester
	Connect(ctx context.Context) error
	Disconnect() error
}

// Upgrader runs one firmware upgrade.
//
// An Upgrader is single use: create one per upgrade attempt.
type Upgrader struct {
	client Client
	config Config
	log    logging.Logger
	images *image.Manager
	os     *osmgr.Manager

	mu       sync.Mutex
	phase    Phase
	state    State
	err      error
	canceled bool
	session  *transfer.Session
	started  time.Time
	total    uint64

	done chan struct{}
}

// New creates an Upgrader over client with the given options.
//
// Example:
//
//	up := upgrade.New(client,
//	    upgrade.WithMode(upgrade.ModeTestAndConfirm),
//	    upgrade.WithEstimatedSwapTime(10*time.Second),
//	)
//	img, _ := firmware.Load("app_update.bin")
//	if err := up.Start(ctx, img); err != nil {
//	    return err
//	}
//	err := up.Wait()
func New(client Client, opts ...Option) *Upgrader {
	if client == nil {
		panic("client cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Upgrader{
		client: client,
		config: cfg,
		log:    logging.Component(cfg.Logger, "upgrade"),
		images: image.New(client, cfg.Logger),
		os:     osmgr.New(client, cfg.Logger),
		done:   make(chan struct{}),
	}
}

// Start begins the workflow in the background.
func (u *Upgrader) Start(ctx context.Context, img *firmware.Image) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != StateIdle {
		return ErrAlreadyStarted
	}
	u.state = StateRunning
	u.phase = PhaseValidating
	u.started = u.config.Clock.Now()
	if img != nil {
		u.total = uint64(img.Size())
	}

	go u.run(ctx, img)
	return nil
}

// Cancel stops the workflow. It is only accepted while validating or
// uploading; in any other phase it returns a *CannotCancelError and the
// workflow continues.
func (u *Upgrader) Cancel() error {
	u.mu.Lock()
	if u.state != StateRunning || !u.phase.cancelable() {
		phase := u.phase
		u.mu.Unlock()
		return &CannotCancelError{Phase: phase}
	}
	u.canceled = true
	session := u.session
	u.mu.Unlock()

	u.log.Info("cancel requested")
	if session != nil {
		session.Cancel()
	}
	return nil
}

// Phase returns the current phase.
func (u *Upgrader) Phase() Phase {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.phase
}

// State returns the overall workflow state.
func (u *Upgrader) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Err returns the terminal error, nil while running or after success.
func (u *Upgrader) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Done is closed when the workflow ends.
func (u *Upgrader) Done() <-chan struct{} {
	return u.done
}

// Wait blocks until the workflow ends and returns its error.
func (u *Upgrader) Wait() error {
	<-u.done
	return u.Err()
}

// enter moves to phase p unless the workflow was canceled.
func (u *Upgrader) enter(p Phase) bool {
	u.mu.Lock()
	if u.canceled {
		u.mu.Unlock()
		return false
	}
	prev := u.phase
	u.phase = p
	u.mu.Unlock()

	u.log.Debug("phase change", "from", prev.String(), "to", p.String())
	u.notifyState(p, StateRunning)
	u.reportProgress(p, 0)
	return true
}

func (u *Upgrader) run(ctx context.Context, img *firmware.Image) {
	err := u.execute(ctx, img)

	u.mu.Lock()
	switch {
	case err == nil:
		u.state = StateSucceeded
	case errors.Is(err, ErrCanceled):
		u.state = StateCanceled
	default:
		u.state = StateFailed
	}
	u.err = err
	phase, state := u.phase, u.state
	u.mu.Unlock()

	if err != nil {
		u.log.Error("upgrade ended", "phase", phase.String(), "state", state.String(), "error", err)
	} else {
		u.log.Info("upgrade complete", "elapsed", u.config.Clock.Since(u.started).String())
	}
	u.notifyState(phase, state)
	close(u.done)
}

// execute runs the phases in order. Every error it returns is ErrCanceled or
// a *PhaseError.
func (u *Upgrader) execute(ctx context.Context, img *firmware.Image) error {
	if !u.enter(PhaseValidating) {
		return ErrCanceled
	}
	running, err := u.validate(ctx, img)
	if err != nil {
		return &PhaseError{Phase: PhaseValidating, Err: err}
	}
	if running {
		u.log.Info("image already running and confirmed", "hash", fmt.Sprintf("%x", img.Hash))
		if !u.enter(PhaseDone) {
			return ErrCanceled
		}
		return nil
	}
	hash := img.Hash[:]

	if u.config.EraseBeforeUpload {
		if !u.enter(PhaseErasing) {
			return ErrCanceled
		}
		if err := u.images.Erase(ctx, secondarySlot); err != nil {
			return &PhaseError{Phase: PhaseErasing, Err: err}
		}
	}

	if !u.enter(PhaseUploading) {
		return ErrCanceled
	}
	if err := u.upload(ctx, img); err != nil {
		if errors.Is(err, ErrCanceled) {
			return err
		}
		return &PhaseError{Phase: PhaseUploading, Err: err}
	}

	if u.config.Mode == ModeConfirmOnly {
		if !u.enter(PhaseConfirming) {
			return ErrCanceled
		}
		if err := u.confirmPending(ctx, hash); err != nil {
			return &PhaseError{Phase: PhaseConfirming, Err: err}
		}
		u.enter(PhaseDone)
		return nil
	}

	if !u.enter(PhaseAwaitingTestBoot) {
		return ErrCanceled
	}
	if err := u.verifyUploaded(ctx, hash); err != nil {
		return &PhaseError{Phase: PhaseAwaitingTestBoot, Err: err}
	}

	u.enter(PhaseTesting)
	slots, err := u.images.Test(ctx, hash)
	if err != nil {
		return &PhaseError{Phase: PhaseTesting, Err: err}
	}

	u.enter(PhaseAwaitingReset)
	if s, ok := image.Find(slots, hash); !ok || !s.Pending {
		return &PhaseError{Phase: PhaseAwaitingReset, Err: &ImageMismatchError{
			Expected: hash,
			Reason:   "not marked pending after test",
		}}
	}

	u.enter(PhaseResetting)
	if err := u.resetAndReconnect(ctx); err != nil {
		return &PhaseError{Phase: PhaseResetting, Err: err}
	}

	if u.config.Mode == ModeTestOnly {
		u.enter(PhaseDone)
		return nil
	}

	u.enter(PhaseConfirming)
	if err := u.confirmRunning(ctx, hash); err != nil {
		return &PhaseError{Phase: PhaseConfirming, Err: err}
	}

	u.enter(PhaseDone)
	return nil
}

// validate checks the image and the link. It reports running=true when the
// device already runs the image confirmed.
func (u *Upgrader) validate(ctx context.Context, img *firmware.Image) (running bool, err error) {
	if err := img.Validate(u.config.MaxImageSize); err != nil {
		return false, err
	}
	if err := u.client.Connect(ctx); err != nil {
		return false, err
	}

	slots, err := u.images.State(ctx)
	if err != nil {
		return false, err
	}
	active, ok := image.Active(slots)
	return ok && active.Confirmed && bytes.Equal(active.Hash, img.Hash[:]), nil
}

func (u *Upgrader) upload(ctx context.Context, img *firmware.Image) error {
	opts := make([]transfer.Option, 0, len(u.config.TransferOptions)+2)
	opts = append(opts, transfer.WithLogger(u.config.Logger))
	opts = append(opts, u.config.TransferOptions...)
	opts = append(opts, transfer.WithProgressCallback(func(p transfer.Progress) {
		u.reportProgress(PhaseUploading, p.Bytes)
	}))

	u.mu.Lock()
	if u.canceled {
		u.mu.Unlock()
		return ErrCanceled
	}
	s := u.images.Upload(img.Data, img.Hash[:], opts...)
	u.session = s
	u.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		if errors.Is(err, transfer.ErrCanceled) {
			return ErrCanceled
		}
		return err
	}

	res := s.Wait()
	u.mu.Lock()
	u.session = nil
	u.mu.Unlock()

	switch res.State {
	case transfer.Completed:
		return nil
	case transfer.Canceled:
		return fmt.Errorf("%w: %v", ErrCanceled, res.Err)
	default:
		return res.Err
	}
}

// verifyUploaded checks that the uploaded image sits in a slot and is not
// the one running.
func (u *Upgrader) verifyUploaded(ctx context.Context, hash []byte) error {
	slots, err := u.images.State(ctx)
	if err != nil {
		return err
	}
	s, ok := image.Find(slots, hash)
	if !ok {
		return &ImageMismatchError{Expected: hash, Reason: "not found in any slot after upload"}
	}
	if s.Active {
		return &ImageMismatchError{Expected: hash, Reason: "already active"}
	}
	return nil
}

func (u *Upgrader) confirmPending(ctx context.Context, hash []byte) error {
	slots, err := u.images.Confirm(ctx, hash)
	if err != nil {
		return err
	}
	s, ok := image.Find(slots, hash)
	if !ok || !(s.Permanent || s.Confirmed) {
		return &ImageMismatchError{Expected: hash, Reason: "not marked permanent after confirm"}
	}
	return nil
}

// confirmRunning confirms the new image once the device booted it. A device
// that reverted to the old image fails the workflow.
func (u *Upgrader) confirmRunning(ctx context.Context, hash []byte) error {
	slots, err := u.images.State(ctx)
	if err != nil {
		return err
	}
	active, ok := image.Active(slots)
	if !ok || !bytes.Equal(active.Hash, hash) {
		return &ImageMismatchError{Expected: hash, Actual: active.Hash, Reason: "not running after test boot"}
	}

	slots, err = u.images.Confirm(ctx, hash)
	if err != nil {
		return err
	}
	if active, ok = image.Active(slots); !ok || !active.Confirmed {
		return &ImageMismatchError{Expected: hash, Reason: "not confirmed"}
	}
	return nil
}

// resetAndReconnect reboots the device, waits out the image swap and
// reconnects within the reconnect timeout.
func (u *Upgrader) resetAndReconnect(ctx context.Context) error {
	if err := u.os.Reset(ctx); err != nil {
		return err
	}
	if err := u.client.Disconnect(); err != nil {
		u.log.Debug("disconnect after reset", "error", err)
	}

	clock := u.config.Clock
	if d := u.config.EstimatedSwapTime; d > 0 {
		u.log.Info("waiting for image swap", "duration", d.String())
		select {
		case <-clock.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	deadline := clock.Now().Add(u.config.ReconnectTimeout)
	attempts := 0
	for {
		attempts++
		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 {
			break
		}

		attemptCtx, cancel := context.WithTimeout(ctx, remaining)
		err := u.client.Connect(attemptCtx)
		cancel()
		if err == nil {
			u.log.Info("reconnected", "attempts", attempts)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		u.log.Debug("reconnect attempt failed", "attempt", attempts, "error", err)

		select {
		case <-clock.After(u.config.ReconnectInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w within %s", ErrReconnectTimeout, u.config.ReconnectTimeout)
}

// reportProgress calls the progress callback if configured.
func (u *Upgrader) reportProgress(phase Phase, sent uint64) {
	if u.config.ProgressCallback == nil {
		return
	}

	u.mu.Lock()
	total, started := u.total, u.started
	u.mu.Unlock()

	percentage := 0.0
	switch {
	case phase > PhaseUploading:
		percentage, sent = 100, total
	case total > 0:
		percentage = float64(sent) / float64(total) * 100
	}
	u.config.ProgressCallback(Progress{
		Phase:       phase,
		BytesSent:   sent,
		TotalBytes:  total,
		Percentage:  percentage,
		ElapsedTime: u.config.Clock.Since(started),
	})
}

func (u *Upgrader) notifyState(phase Phase, state State) {
	if u.config.StateCallback != nil {
		u.config.StateCallback(phase, state)
	}
}
