// Package reconcile keeps the local view and the server convergent across
// connectivity loss: failed writes go to the pending queue, the queue is
// drained in one batch when connectivity returns, and while offline the
// queued records are folded into the displayed list.
package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/dvloznov/budget-tracker/internal/connectivity"
	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/pending"
	"github.com/rs/zerolog"
)

// Gateway is the server side of reconciliation.
type Gateway interface {
	Create(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
	BulkCreate(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, error)
	List(ctx context.Context) ([]domain.Transaction, error)
}

// Outcome says where a user write ended up.
type Outcome int

const (
	// Persisted means the server acknowledged the record.
	Persisted Outcome = iota
	// Queued means the record waits in the pending queue.
	Queued
	// Dropped means the write failed and offline support is disabled, so the record is lost.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Persisted:
		return "persisted"
	case Queued:
		return "queued"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Coordinator owns the pending queue on behalf of one session.
type Coordinator struct {
	gateway Gateway
	session *Session
	log     zerolog.Logger

	// drainMu serializes drain-submit-remove so two connectivity signals
	// never submit the same batch concurrently.
	drainMu sync.Mutex

	qmu   sync.RWMutex
	queue pending.Queue // nil once local storage failed
}

// NewCoordinator wires a coordinator. A nil queue means local storage could
// not be opened and the session runs online-only.
func NewCoordinator(queue pending.Queue, gw Gateway, session *Session, log zerolog.Logger) *Coordinator {
	if session == nil {
		session = NewSession()
	}
	c := &Coordinator{
		gateway: gw,
		session: session,
		log:     log,
		queue:   queue,
	}
	if queue == nil {
		log.Warn().Msg("No pending queue available - running online-only, failed writes will be lost")
	}
	return c
}

// Session returns the session the coordinator writes into.
func (c *Coordinator) Session() *Session {
	return c.session
}

// OfflineSupport reports whether failed writes can still be queued.
func (c *Coordinator) OfflineSupport() bool {
	return c.currentQueue() != nil
}

// Pending reports how many records wait in the local queue.
func (c *Coordinator) Pending(ctx context.Context) (int, error) {
	q := c.currentQueue()
	if q == nil {
		return 0, nil
	}
	n, err := q.Len(ctx)
	if err != nil {
		c.handleQueueErr(err)
		return 0, err
	}
	return n, nil
}

func (c *Coordinator) currentQueue() pending.Queue {
	c.qmu.RLock()
	defer c.qmu.RUnlock()
	return c.queue
}

// disableQueue drops offline support for the rest of the session after a
// local storage failure. It is logged once and never retried.
func (c *Coordinator) disableQueue(err error) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if c.queue == nil {
		return
	}
	c.log.Error().Err(err).Msg("Local storage failed - offline support disabled for this session")
	_ = c.queue.Close()
	c.queue = nil
}

// handleQueueErr disables the queue for storage failures and reports whether it did.
func (c *Coordinator) handleQueueErr(err error) bool {
	if errors.Is(err, pending.ErrStorage) {
		c.disableQueue(err)
		return true
	}
	return false
}

// Load populates the session from the server, then reconciles according to
// the connectivity state seen at startup.
func (c *Coordinator) Load(ctx context.Context, online bool) error {
	txs, err := c.gateway.List(ctx)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return err
		}
		c.log.Warn().Err(err).Msg("Could not load transactions")
	} else {
		c.session.Replace(txs)
	}

	if online {
		_, err := c.OnConnectivityRestored(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("Startup reconciliation failed, queue kept for next signal")
		}
		return nil
	}
	_, err = c.OnColdStartOffline(ctx)
	return err
}

// OnConnectivityRestored drains the queue to the server as one batch and
// removes the batch only after it was acknowledged. On failure the queue is
// left intact; nothing is rescheduled until the next signal.
func (c *Coordinator) OnConnectivityRestored(ctx context.Context) (int, error) {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	q := c.currentQueue()
	if q == nil {
		return 0, nil
	}

	entries, err := q.DrainAll(ctx)
	if err != nil {
		c.handleQueueErr(err)
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	log := c.log.With().Int("records", len(entries)).Logger()
	if _, err := c.gateway.BulkCreate(ctx, pending.Records(entries)); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			log.Error().Err(err).Msg("Server rejected queued batch - keeping it queued")
		} else {
			log.Warn().Err(err).Msg("Batch submit failed - keeping queue for next connectivity signal")
		}
		return 0, err
	}

	// Remove exactly what was acknowledged; records queued meanwhile stay.
	if err := q.Remove(ctx, pending.Keys(entries)...); err != nil {
		c.handleQueueErr(err)
		log.Error().Err(err).Msg("Batch acknowledged but queue not cleared - records may be resent")
		return len(entries), err
	}

	c.session.mergeQueued(entries)
	log.Info().Msg("Pending queue reconciled")
	return len(entries), nil
}

// OnColdStartOffline shows queued records in the list without touching the
// queue. Calling it again in the same session adds nothing already merged.
func (c *Coordinator) OnColdStartOffline(ctx context.Context) (int, error) {
	q := c.currentQueue()
	if q == nil {
		return 0, nil
	}
	entries, err := q.DrainAll(ctx)
	if err != nil {
		c.handleQueueErr(err)
		return 0, err
	}
	added := c.session.mergeQueued(entries)
	if added > 0 {
		c.log.Info().Int("records", added).Msg("Merged queued records into offline view")
	}
	return added, nil
}

// RecordWrite sends one user-created record that the caller already put in
// the session. Validation failures are returned; any other failure routes
// the record to the pending queue.
func (c *Coordinator) RecordWrite(ctx context.Context, tx domain.Transaction) (Outcome, error) {
	if err := tx.Validate(); err != nil {
		return Dropped, err
	}

	_, err := c.gateway.Create(ctx, tx)
	if err == nil {
		return Persisted, nil
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return Dropped, err
	}

	log := c.log.With().Str("transaction_id", tx.ID).Logger()
	q := c.currentQueue()
	if q == nil {
		log.Error().Err(err).Msg("Write failed and offline support is disabled - record lost")
		return Dropped, nil
	}
	key, qerr := q.Enqueue(ctx, tx)
	if qerr != nil {
		if !c.handleQueueErr(qerr) {
			log.Error().Err(qerr).Msg("Could not queue record")
		}
		return Dropped, nil
	}
	c.session.markMerged(key)
	log.Info().Err(err).Uint64("key", key).Msg("Server unreachable - record queued")
	return Queued, nil
}

// Submit is the full user-action path: show the record, then persist it.
func (c *Coordinator) Submit(ctx context.Context, tx domain.Transaction) (Outcome, error) {
	if err := tx.Validate(); err != nil {
		return Dropped, err
	}
	c.session.Prepend(tx)
	return c.RecordWrite(ctx, tx)
}

// HandleConnectivity reacts to connectivity events. The initial event
// triggers the cold-start path; later ones only reconcile on transitions
// to online.
func (c *Coordinator) HandleConnectivity(ctx context.Context, ev connectivity.Event) {
	if ev.Initial {
		if err := c.Load(ctx, ev.Online); err != nil {
			c.log.Warn().Err(err).Msg("Startup load failed")
		}
		return
	}
	if !ev.Online {
		c.log.Info().Msg("Connectivity lost")
		return
	}
	c.log.Info().Msg("Connectivity restored")
	if _, err := c.OnConnectivityRestored(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Reconciliation failed")
	}
}
