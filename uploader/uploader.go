// Package uploader drains the signal channel and uploads closed batches in
// creation order, exactly as spec.md §4.5 describes the Uploader state
// machine: Idle -> Running -> Cancelled, with a single worker per Running
// period, strict sequential delivery within one worker iteration, and a
// terminal-error handler table that decides per non-retryable status
// whether to drop a batch or shut the whole uploader down.
package uploader

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/rudderlabs/rudder-eventcore/backoffpolicy"
	"github.com/rudderlabs/rudder-eventcore/batchmanager"
	"github.com/rudderlabs/rudder-eventcore/corelog"
	"github.com/rudderlabs/rudder-eventcore/retryheaders"
	"github.com/rudderlabs/rudder-eventcore/storage"
	"github.com/rudderlabs/rudder-eventcore/uploaderrors"
)

// State is the Uploader's own lifecycle, distinct from the per-batch upload
// outcome (spec §4.5 "State machine per Uploader").
type State int

const (
	Idle State = iota
	Running
	Cancelled
)

// flushSignal is the sentinel spec.md §4.5 calls "#!upload"; the channel
// itself need carry no payload; the name documents intent at call sites.
type flushSignal struct{}

// HostCallbacks are the two host-level notifications the Uploader can raise
// on a fatal-for-stream error (spec §7): the persisted batch is left in
// place in both cases, for future reactivation.
type HostCallbacks struct {
	HandleInvalidWriteKey func()
	DisableSource         func()
}

// Config wires an Uploader's collaborators.
type Config struct {
	Storage       *storage.Storage
	RetryHeaders  *retryheaders.Provider
	Backoff       *backoffpolicy.Policy
	Sender        HttpSender
	Loggers       corelog.Loggers
	Host          HostCallbacks
	RateLimiter   *rate.Limiter // nil disables rate limiting (SPEC_FULL.md §2)
	OnBatchUpload func(success bool, retryReason string, elapsed time.Duration)
}

// Uploader is the component spec.md §4.5 describes.
type Uploader struct {
	storage      *storage.Storage
	retryHeaders *retryheaders.Provider
	backoff      *backoffpolicy.Policy
	sender       HttpSender
	loggers      corelog.Loggers
	host         HostCallbacks
	limiter      *rate.Limiter
	onUpload     func(success bool, retryReason string, elapsed time.Duration)

	mu       sync.Mutex
	state    State
	signalCh chan flushSignal
	cancelFn context.CancelFunc
	done     chan struct{}

	lastAnonymousID string
}

// New returns an Idle Uploader. Call Start to begin draining flush signals.
func New(cfg Config) *Uploader {
	return &Uploader{
		storage:      cfg.Storage,
		retryHeaders: cfg.RetryHeaders,
		backoff:      cfg.Backoff,
		sender:       cfg.Sender,
		loggers:      cfg.Loggers,
		host:         cfg.Host,
		limiter:      cfg.RateLimiter,
		onUpload:     cfg.OnBatchUpload,
		state:        Idle,
	}
}

// Start is idempotent while Running; from Idle or Cancelled it (re)creates
// the signal channel and spawns a single worker goroutine (spec §4.5).
func (u *Uploader) Start() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == Running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	u.cancelFn = cancel
	u.signalCh = make(chan flushSignal, 1<<16) // unbounded-in-practice, matches spec §5's "unbounded" signal channel
	u.done = make(chan struct{})
	u.state = Running
	go u.runWorker(ctx, u.signalCh, u.done)
}

// Flush is a non-blocking send of the flush sentinel; a send that can't be
// delivered because the channel is full or closed is silently dropped
// (spec §4.5 "Lost sends... are silently dropped"). The recover guards the
// narrow race where Cancel (or a self-initiated cancel from a fatal
// terminal error) closes the channel between the nil check and the send.
func (u *Uploader) Flush() {
	u.mu.Lock()
	ch := u.signalCh
	u.mu.Unlock()
	if ch == nil {
		return
	}
	defer func() { _ = recover() }()
	select {
	case ch <- flushSignal{}:
	default:
	}
}

// Cancel raises cooperative cancellation, closes the signal channel, and
// transitions to Cancelled. Start may be called again afterward.
func (u *Uploader) Cancel() {
	u.mu.Lock()
	if u.state != Running {
		u.mu.Unlock()
		return
	}
	cancel := u.cancelFn
	ch := u.signalCh
	done := u.done
	u.state = Cancelled
	u.signalCh = nil
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		close(ch)
	}
	if done != nil {
		<-done
	}
}

// selfCancel performs the same Running->Cancelled state transition as Cancel,
// but is called from inside the worker goroutine itself (spec §7: a 401/404
// makes "the uploader cancel itself"). It must not block on <-u.done, since
// the worker goroutine is what closes that channel on return.
func (u *Uploader) selfCancel() {
	u.mu.Lock()
	if u.state != Running {
		u.mu.Unlock()
		return
	}
	cancel := u.cancelFn
	ch := u.signalCh
	u.state = Cancelled
	u.signalCh = nil
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		close(ch)
	}
}

// State returns the Uploader's current lifecycle state.
func (u *Uploader) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *Uploader) runWorker(ctx context.Context, signalCh <-chan flushSignal, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signalCh:
			if !ok {
				return
			}
			switch u.processSignal(ctx) {
			case stopExternalOutcome:
				return
			case stopFatalOutcome:
				u.selfCancel()
				return
			}
		}
	}
}

// loopOutcome threads a stop signal up through processSignal /
// processClosedBatch / retryLoop without an error value, since neither stop
// reason is itself an error the caller need act on beyond halting.
type loopOutcome int

const (
	continueOutcome loopOutcome = iota
	// stopExternalOutcome means ctx was already cancelled by Cancel(); the
	// worker just returns, Cancel() is already waiting on done.
	stopExternalOutcome
	// stopFatalOutcome means a 401/404 terminal error was hit; the worker
	// must perform the Running->Cancelled transition itself, since nothing
	// external initiated it (spec §7 "the uploader cancels itself").
	stopFatalOutcome
)

// processSignal is one "worker loop (per signal)" iteration of spec §4.5:
// roll over the open batch, enumerate closed batches, then upload them one
// at a time in that order.
func (u *Uploader) processSignal(ctx context.Context) loopOutcome {
	if err := u.storage.Rollover(); err != nil {
		u.loggers.Errorf("rollover: %v", err)
	}

	joined, err := u.storage.ReadEventIDs()
	if err != nil {
		u.loggers.Errorf("read closed batch ids: %v", err)
		return continueOutcome
	}
	ids, err := storage.ParseEventIDs(joined)
	if err != nil {
		u.loggers.Errorf("parse closed batch ids: %v", err)
		return continueOutcome
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return stopExternalOutcome
		}
		if outcome := u.processClosedBatch(ctx, id); outcome != continueOutcome {
			return outcome
		}
	}
	return continueOutcome
}

// processClosedBatch reads one closed batch and drives its retry loop under
// panic recovery: an exception other than cancellation removes the batch
// and the worker continues with the next one (spec §7 "Local processing
// exception"). The retry loop itself runs in a conc.WaitGroup-supervised
// goroutine (SPEC_FULL.md §4.5 "Worker pool discipline"), grounded on
// coachpo-meltica-gateway's own use of sourcegraph/conc for worker
// orchestration.
func (u *Uploader) processClosedBatch(ctx context.Context, id batchmanager.BatchID) loopOutcome {
	content, ok, err := u.storage.ReadBatchContent(id)
	if err != nil {
		u.loggers.Errorf("read batch %d: %v", id, err)
		_, _ = u.storage.RemoveBatch(id)
		return continueOutcome
	}
	if !ok {
		return continueOutcome
	}

	outcome := continueOutcome
	var wg conc.WaitGroup
	wg.Go(func() {
		outcome = u.retryLoop(ctx, id, []byte(content))
	})

	recovered := func() (panicked bool) {
		defer func() {
			if r := recover(); r != nil {
				u.loggers.Errorf("recovered panic processing batch %d: %v", id, r)
				panicked = true
			}
		}()
		wg.Wait()
		return false
	}()
	if recovered {
		_, _ = u.storage.RemoveBatch(id)
		return continueOutcome
	}
	return outcome
}

// retryLoop implements spec §4.5's "Retry loop" for a single batch.
func (u *Uploader) retryLoop(ctx context.Context, id batchmanager.BatchID, content []byte) loopOutcome {
	anonymousID := extractAnonymousID(content)
	if anonymousID != u.lastAnonymousID {
		u.sender.SetAnonymousID(anonymousID)
		u.lastAnonymousID = anonymousID
	}

	for {
		if ctx.Err() != nil {
			return stopExternalOutcome
		}
		if u.limiter != nil {
			if err := u.limiter.Wait(ctx); err != nil {
				return stopExternalOutcome
			}
		}

		start := time.Now()
		headers := u.retryHeaders.GetHeaders(id, start.UnixMilli())
		payload := replaceSentAt(content, start)

		result := u.sender.Send(ctx, payload, headers)
		elapsed := time.Since(start)

		switch {
		case result.Success:
			_ = u.retryHeaders.Clear()
			u.backoff.Reset()
			_, _ = u.storage.RemoveBatch(id)
			u.notify(true, "", elapsed)
			return continueOutcome

		case result.Retry != nil:
			now := time.Now().UnixMilli()
			_ = u.retryHeaders.RecordFailure(id, now, *result.Retry)
			u.notify(false, reasonForNotify(*result.Retry), elapsed)
			if err := u.backoff.DelayWithBackoff(ctx); err != nil {
				return stopExternalOutcome
			}
			continue

		case result.Terminal != nil:
			_ = u.retryHeaders.Clear()
			u.backoff.Reset()
			return u.handleTerminal(id, *result.Terminal)

		default:
			// Defensive: a Result with neither field set is treated as an
			// unknown retryable failure rather than silently looping.
			_ = u.retryHeaders.RecordFailure(id, time.Now().UnixMilli(), uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorUnknown})
			if err := u.backoff.DelayWithBackoff(ctx); err != nil {
				return stopExternalOutcome
			}
			continue
		}
	}
}

func (u *Uploader) notify(success bool, reason string, elapsed time.Duration) {
	if u.onUpload != nil {
		u.onUpload(success, reason, elapsed)
	}
}

func reasonForNotify(err uploaderrors.RetryAbleError) string {
	switch err.Kind {
	case uploaderrors.ErrorRetry:
		return "server"
	case uploaderrors.ErrorNetworkUnavailable:
		return "network"
	case uploaderrors.ErrorTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// handleTerminal implements the non-retryable handler table of spec §4.5/§7.
func (u *Uploader) handleTerminal(id batchmanager.BatchID, err uploaderrors.NonRetryAbleError) loopOutcome {
	switch err.Kind {
	case uploaderrors.Error400:
		u.loggers.Warnf("batch %d rejected as malformed (400); dropping", id)
		_, _ = u.storage.RemoveBatch(id)
		return continueOutcome
	case uploaderrors.Error413:
		u.loggers.Warnf("batch %d rejected as too large (413); dropping", id)
		_, _ = u.storage.RemoveBatch(id)
		return continueOutcome
	case uploaderrors.Error401:
		u.loggers.Errorf("invalid write key (401); batch %d left in place", id)
		if u.host.HandleInvalidWriteKey != nil {
			u.host.HandleInvalidWriteKey()
		}
		return stopFatalOutcome
	case uploaderrors.Error404:
		u.loggers.Errorf("source disabled (404); batch %d left in place", id)
		if u.host.DisableSource != nil {
			u.host.DisableSource()
		}
		return stopFatalOutcome
	default:
		return continueOutcome
	}
}
