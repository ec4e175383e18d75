// Package scan implements the scanning session: duplicate suppression over a
// stream of decoded codes, single-shot and batch modes, and dispatch to the
// processing pipeline.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	shelferrors "github.com/lepinkainen/shelfscan/internal/errors"
	"github.com/lepinkainen/shelfscan/internal/pipeline"
	"github.com/lepinkainen/shelfscan/internal/worker"
)

// DefaultDuplicateWindow suppresses repeat decodes of one code.
const DefaultDuplicateWindow = 2 * time.Second

var (
	// ErrNotScanning is returned by Submit while the session is idle.
	ErrNotScanning = errors.New("scan session is not active")
	// ErrAlreadyScanning is returned by Start while a scan is running.
	ErrAlreadyScanning = errors.New("scan session already active")
	// ErrUnrecognized is returned for input that is not a supported code.
	ErrUnrecognized = errors.New("unrecognized code")
)

// Mode selects how accepted codes are processed.
type Mode int

const (
	// SingleShot processes one code synchronously and then stops.
	SingleShot Mode = iota
	// Batch keeps scanning and processes each code in the background.
	Batch
)

func (m Mode) String() string {
	if m == Batch {
		return "batch"
	}
	return "single"
}

// State is the session state.
type State int

const (
	Idle State = iota
	Scanning
)

func (s State) String() string {
	if s == Scanning {
		return "scanning"
	}
	return "idle"
}

// Status describes what Submit did with a code.
type Status string

const (
	StatusProcessed  Status = "processed"
	StatusDispatched Status = "dispatched"
	StatusDuplicate  Status = "duplicate"
)

// Outcome is the result of Submit.
type Outcome struct {
	Code   barcode.Code
	Status Status
	// Result is set for single-shot scans.
	Result *pipeline.Result
}

// Processor runs the lookup and merge for one code. *pipeline.Pipeline
// implements it.
type Processor interface {
	Process(ctx context.Context, ownerID string, code barcode.Code, typePreference product.ItemType) (pipeline.Result, error)
}

// Submitter runs background tasks. *worker.Pool implements it.
type Submitter interface {
	Submit(name string, fn worker.TaskFunc) error
}

// Event reports the outcome of a batch task.
type Event struct {
	Code   barcode.Code
	Result pipeline.Result
	Err    error
}

// EventSink receives batch outcomes. It may be called from several
// goroutines at once.
type EventSink interface {
	Report(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Report calls f.
func (f EventSinkFunc) Report(e Event) { f(e) }

// StartOptions configures a scan.
type StartOptions struct {
	Owner string
	Mode  Mode
	// Type overrides the catalog item type of every code scanned.
	Type product.ItemType
}

// Session is one scanning surface. Submit is meant to be called serially by
// the capture loop.
type Session struct {
	proc  Processor
	tasks Submitter
	sink  EventSink

	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	state   State
	opts    StartOptions
	seen    map[string]time.Time
	stopped bool
}

// Option configures a Session.
type Option func(*Session)

// WithDuplicateWindow changes the duplicate suppression window.
func WithDuplicateWindow(d time.Duration) Option {
	return func(s *Session) { s.window = d }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithTasks sets the pool batch codes are dispatched to.
func WithTasks(t Submitter) Option {
	return func(s *Session) { s.tasks = t }
}

// WithEventSink sets the receiver of batch outcomes.
func WithEventSink(sink EventSink) Option {
	return func(s *Session) { s.sink = sink }
}

// NewSession creates an idle session.
func NewSession(proc Processor, opts ...Option) *Session {
	s := &Session{
		proc:   proc,
		window: DefaultDuplicateWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins scanning and resets duplicate suppression.
func (s *Session) Start(opts StartOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Scanning {
		return ErrAlreadyScanning
	}
	if opts.Mode == Batch && s.tasks == nil {
		return fmt.Errorf("batch mode needs a worker pool")
	}

	s.state = Scanning
	s.opts = opts
	s.seen = make(map[string]time.Time)
	s.stopped = false
	slog.Debug("Scan session started", "owner", opts.Owner, "mode", opts.Mode)
	return nil
}

// Stop ends scanning. Tasks already dispatched keep running.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Scanning {
		slog.Debug("Scan session stopped", "mode", s.opts.Mode)
	}
	s.state = Idle
	s.stopped = true
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submit handles one decoded code. Repeats of a code within the duplicate
// window return StatusDuplicate without processing. In single-shot mode the
// first accepted code ends the scan and is processed before Submit returns;
// in batch mode it is dispatched and Submit returns at once.
//
// After Stop, Submit fails with an error matching both ErrNotScanning and
// shelferrors.IsStopProcessingError.
func (s *Session) Submit(ctx context.Context, raw string) (Outcome, error) {
	code := barcode.Normalize(raw)
	out := Outcome{Code: code}

	s.mu.Lock()
	if s.state != Scanning {
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return out, fmt.Errorf("%w: %w", ErrNotScanning, shelferrors.NewStopProcessingError("scan session stopped"))
		}
		return out, ErrNotScanning
	}

	key := raw
	if code.Valid() {
		key = code.Digits
	}
	now := s.now()
	if last, ok := s.seen[key]; ok && now.Sub(last) < s.window {
		s.mu.Unlock()
		out.Status = StatusDuplicate
		slog.Debug("Duplicate scan suppressed", "code", key)
		return out, nil
	}
	s.seen[key] = now

	if !code.Valid() {
		s.mu.Unlock()
		return out, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
	}

	opts := s.opts
	if opts.Mode == SingleShot {
		s.state = Idle
	}
	s.mu.Unlock()

	if opts.Mode == SingleShot {
		res, err := s.proc.Process(ctx, opts.Owner, code, opts.Type)
		out.Status = StatusProcessed
		out.Result = &res
		return out, err
	}

	err := s.tasks.Submit("scan:"+code.Digits, func(ctx context.Context) error {
		res, err := s.proc.Process(ctx, opts.Owner, code, opts.Type)
		if s.sink != nil {
			s.sink.Report(Event{Code: code, Result: res, Err: err})
		}
		return err
	})
	if err != nil {
		return out, fmt.Errorf("dispatch %s: %w", code, err)
	}
	out.Status = StatusDispatched
	return out, nil
}
