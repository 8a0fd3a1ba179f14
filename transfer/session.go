package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/protocol"
	"github.com/moffa90/go-mcumgr/smp"
	"github.com/moffa90/go-mcumgr/transport"
)

// Requester issues one request and waits for its response.
// *smp.Client implements it.
type Requester interface {
	Do(ctx context.Context, req *protocol.Envelope) (*protocol.Envelope, protocol.Response, error)
	MTU() int
}

// UploadCodec builds the chunk requests of an upload and reads the offset
// the peripheral acknowledges.
type UploadCodec interface {
	// Path names the transfer target in errors and logs
	Path() string

	// Chunk builds the request carrying data at off. first marks the
	// opening chunk, which also carries total.
	Chunk(off uint64, data []byte, total uint64, first bool) (*protocol.Envelope, error)

	// Acked returns the offset reported by the peripheral.
	Acked(rsp protocol.Response) (uint64, error)
}

// DownloadCodec builds the read requests of a download and extracts the data
// carried by each response.
type DownloadCodec interface {
	// Path names the transfer target in errors and logs
	Path() string

	// Read builds the request for data starting at off.
	Read(off uint64) (*protocol.Envelope, error)

	// Chunk returns the offset and data of a response. total is only set on
	// the response to the first read.
	Chunk(rsp protocol.Response) (off uint64, data []byte, total *uint64, err error)
}

// Kind is the transfer direction.
type Kind int

const (
	Upload Kind = iota
	Download
)

func (k Kind) String() string {
	if k == Download {
		return "download"
	}
	return "upload"
}

// State is the lifecycle state of a Session.
type State int

const (
	// Idle means the session has not been started
	Idle State = iota
	Active
	Completed
	Failed
	Canceled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Canceled
}

// Progress is reported after every acknowledged chunk.
type Progress struct {
	// Bytes is the number of bytes acknowledged so far
	Bytes uint64

	// Total is the transfer length; for downloads it is 0 until the first response
	Total uint64

	// Timestamp is when the acknowledgement was processed
	Timestamp time.Time

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64
}

// ProgressCallback receives progress notifications. Implementations should
// return quickly; the session does not send the next chunk until it returns.
type ProgressCallback func(Progress)

// Result is the terminal outcome of a Session.
type Result struct {
	State State

	// Err is nil when State is Completed
	Err error

	// Bytes is the number of bytes acknowledged
	Bytes uint64

	// Total is the transfer length
	Total uint64

	// Data holds the downloaded bytes of a completed download
	Data []byte

	// Elapsed is the time from Start to the terminal state
	Elapsed time.Duration
}

// DoneCallback receives the terminal result exactly once.
type DoneCallback func(Result)

// Session is one chunked transfer.
type Session struct {
	r    Requester
	cfg  Config
	log  logging.Logger
	kind Kind
	up   UploadCodec
	down DownloadCodec
	path string
	data []byte

	mu       sync.Mutex
	state    State
	started  time.Time
	offset   uint64
	total    uint64
	reported uint64
	result   Result

	cancel     chan struct{}
	cancelOnce sync.Once
	finishOnce sync.Once
	done       chan struct{}
}

// NewUpload returns an idle session uploading data through codec.
// data must not be modified until the session ends.
func NewUpload(r Requester, codec UploadCodec, data []byte, opts ...Option) *Session {
	s := newSession(r, Upload, codec.Path(), opts)
	s.up = codec
	s.data = data
	s.total = uint64(len(data))
	return s
}

// NewDownload returns an idle session reading through codec.
func NewDownload(r Requester, codec DownloadCodec, opts ...Option) *Session {
	s := newSession(r, Download, codec.Path(), opts)
	s.down = codec
	return s
}

func newSession(r Requester, kind Kind, path string, opts []Option) *Session {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Session{
		r:      r,
		cfg:    cfg,
		log:    logging.Component(cfg.Logger, "transfer"),
		kind:   kind,
		path:   path,
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins the transfer in the background.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == Canceled:
		return ErrCanceled
	case s.state != Idle:
		return ErrAlreadyStarted
	}

	s.state = Active
	s.started = s.cfg.Clock.Now()
	s.log.Info("transfer started", "kind", s.kind.String(), "path", s.path, "total", s.total)

	if s.kind == Upload {
		go s.runUpload(ctx)
	} else {
		go s.runDownload(ctx)
	}
	return nil
}

// Cancel stops the session. No further chunk is sent, the response to a
// chunk already in flight is discarded, and the session ends Canceled unless
// it already ended. Cancel may be called any number of times.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
	s.finish(Canceled, ErrCanceled)
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns its result.
func (s *Session) Wait() Result {
	<-s.done
	return s.Result()
}

// Result returns the terminal result, or the zero Result while running.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Offset returns the offset acknowledged so far.
func (s *Session) Offset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Path returns the transfer target.
func (s *Session) Path() string {
	return s.path
}

func (s *Session) canceled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

// finish records the terminal state once and fires the done callback.
// Done is closed after the callback returns.
func (s *Session) finish(state State, err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.state = state
		var elapsed time.Duration
		if !s.started.IsZero() {
			elapsed = s.cfg.Clock.Since(s.started)
		}
		s.result = Result{
			State:   state,
			Err:     err,
			Bytes:   s.offset,
			Total:   s.total,
			Elapsed: elapsed,
		}
		if state == Completed && s.kind == Download {
			s.result.Data = s.data
		}
		res := s.result
		s.mu.Unlock()

		if err != nil && state == Failed {
			s.log.Warn("transfer failed", "path", s.path, "offset", res.Bytes, "error", err)
		} else {
			s.log.Info("transfer ended", "path", s.path, "state", state.String(), "bytes", res.Bytes)
		}

		if s.cfg.DoneCallback != nil {
			s.cfg.DoneCallback(res)
		}
		close(s.done)
	})
}

func (s *Session) fail(err error) {
	s.finish(Failed, err)
}

// advance records a new acknowledged offset and reports progress when it
// moves past everything reported before.
func (s *Session) advance(off uint64) {
	s.mu.Lock()
	s.offset = off
	report := off > s.reported || (off == s.total && s.reported == 0)
	if report {
		s.reported = off
	}
	total := s.total
	s.mu.Unlock()

	if !report || s.cfg.ProgressCallback == nil || s.canceled() {
		return
	}

	p := Progress{Bytes: off, Total: total, Timestamp: s.cfg.Clock.Now()}
	if total > 0 {
		p.Percentage = float64(off) / float64(total) * 100
	} else {
		p.Percentage = 100
	}
	s.cfg.ProgressCallback(p)
}

// retryable reports whether err is a transport-level transient.
func retryable(err error) bool {
	return transport.IsLinkError(err) ||
		errors.Is(err, smp.ErrTimeout) ||
		protocol.IsDecodeError(err)
}

// do issues req, retrying transport transients on the same request until the
// retry budget is exhausted. It returns ok=false when the session ended.
func (s *Session) do(ctx context.Context, build func() (*protocol.Envelope, error), off uint64) (protocol.Response, bool) {
	attempts := 0
	for {
		if s.canceled() {
			return nil, false
		}
		if err := ctx.Err(); err != nil {
			s.finish(Canceled, fmt.Errorf("%w: %v", ErrCanceled, err))
			return nil, false
		}

		req, err := build()
		if err != nil {
			s.fail(fmt.Errorf("%s %s at offset %d: %w", s.kind, s.path, off, err))
			return nil, false
		}

		_, rsp, err := s.r.Do(ctx, req)
		if s.canceled() {
			// Late response of a canceled session.
			return nil, false
		}
		if err == nil {
			return rsp, true
		}

		if ctx.Err() != nil {
			s.finish(Canceled, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err()))
			return nil, false
		}
		if !retryable(err) {
			s.fail(fmt.Errorf("%s %s at offset %d: %w", s.kind, s.path, off, err))
			return nil, false
		}

		attempts++
		if attempts > s.cfg.Retries {
			s.fail(&InterruptedError{Path: s.path, Offset: off, Attempts: attempts, Err: err})
			return nil, false
		}

		s.log.Debug("retrying chunk", "path", s.path, "offset", off, "attempt", attempts, "error", err)
		select {
		case <-s.cfg.Clock.After(s.cfg.RetryBackoff * time.Duration(attempts)):
		case <-s.cancel:
			return nil, false
		case <-ctx.Done():
		}
	}
}

func (s *Session) runUpload(ctx context.Context) {
	overhead, err := Overhead(s.up, s.total)
	if err != nil {
		s.fail(fmt.Errorf("upload %s: %w", s.path, err))
		return
	}

	var off uint64
	stalls := 0
	first := true

	for first || off < s.total {
		size := ChunkSize(s.r.MTU(), overhead, s.cfg.MemoryAlignment, s.cfg.MaxChunkSize)
		if size <= 0 && s.total > 0 {
			s.fail(fmt.Errorf("upload %s: mtu %d, overhead %d: %w", s.path, s.r.MTU(), overhead, ErrMTUTooSmall))
			return
		}

		end := off + uint64(size)
		if end > s.total {
			end = s.total
		}
		chunkOff, chunk, isFirst := off, s.data[off:end], first

		rsp, ok := s.do(ctx, func() (*protocol.Envelope, error) {
			return s.up.Chunk(chunkOff, chunk, s.total, isFirst)
		}, off)
		if !ok {
			return
		}

		acked, err := s.up.Acked(rsp)
		if err != nil {
			s.fail(fmt.Errorf("upload %s at offset %d: %w", s.path, off, err))
			return
		}
		if acked > s.total {
			s.fail(&OffsetError{Path: s.path, Offset: acked, Total: s.total})
			return
		}

		if acked <= off && !(first && acked == s.total) {
			stalls++
			if stalls > s.cfg.MaxStalls {
				s.fail(&StalledError{Path: s.path, Offset: acked, Attempts: stalls})
				return
			}
			if acked < off {
				s.log.Debug("peer rewound offset", "path", s.path, "from", off, "to", acked)
			}
			off = acked
			if acked == 0 {
				// The peer lost the upload; the opening chunk must carry the length again.
				first = true
			}
			s.advance(off)
			continue
		}

		stalls = 0
		first = false
		off = acked
		s.advance(off)
	}

	s.finish(Completed, nil)
}

// maxPrealloc caps the buffer reserved up front for a download; append grows
// it past that as chunks arrive.
const maxPrealloc = 64 << 10

func (s *Session) runDownload(ctx context.Context) {
	var off uint64
	var total uint64
	known := false
	stalls := 0

	for !known || off < total {
		readOff := off
		rsp, ok := s.do(ctx, func() (*protocol.Envelope, error) {
			return s.down.Read(readOff)
		}, off)
		if !ok {
			return
		}

		chunkOff, data, size, err := s.down.Chunk(rsp)
		if err != nil {
			s.fail(fmt.Errorf("download %s at offset %d: %w", s.path, off, err))
			return
		}
		if !known {
			if size == nil {
				s.fail(fmt.Errorf("download %s: first response carries no length", s.path))
				return
			}
			if limit := uint64(s.cfg.MaxDownloadSize); limit > 0 && *size > limit {
				s.fail(&SizeError{Path: s.path, Size: *size, Limit: limit})
				return
			}
			total, known = *size, true
			s.mu.Lock()
			s.total = total
			s.data = make([]byte, 0, min(total, maxPrealloc))
			s.mu.Unlock()
		}

		if chunkOff != off || (len(data) == 0 && off < total) {
			stalls++
			if stalls > s.cfg.MaxStalls {
				s.fail(&StalledError{Path: s.path, Offset: off, Attempts: stalls})
				return
			}
			continue
		}
		if off+uint64(len(data)) > total {
			s.fail(&OffsetError{Path: s.path, Offset: off + uint64(len(data)), Total: total})
			return
		}

		stalls = 0
		s.mu.Lock()
		s.data = append(s.data, data...)
		s.mu.Unlock()
		off += uint64(len(data))
		s.advance(off)
	}

	s.finish(Completed, nil)
}
