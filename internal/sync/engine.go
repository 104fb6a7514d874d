package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ordersync/internal/lifecycle"
	"ordersync/internal/models"
	"ordersync/internal/remote"
	"ordersync/internal/store"
	"ordersync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine reconciles the local store with the remote authority. Orders merge
// bidirectionally (push then pull, last-write-wins); the warehouse replica
// is replaced wholesale on every pull because the server is authoritative
// for stock.
type Engine struct {
	store     *store.Store
	lifecycle *lifecycle.Service
	remote    *remote.Client
	logger    *zap.Logger
}

// NewEngine creates a new sync engine.
func NewEngine(st *store.Store, lc *lifecycle.Service, rc *remote.Client) *Engine {
	return &Engine{
		store:     st,
		lifecycle: lc,
		remote:    rc,
		logger:    util.GetLogger(),
	}
}

// RunPass executes one full sync pass: push orders, pull orders, pull the
// warehouse snapshot. Push precedes pull so a just-created local record
// cannot be clobbered by a stale remote view of the same id. Each phase
// fails independently; a failed phase is retried on the next pass.
func (e *Engine) RunPass(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "SyncEngine.RunPass")
	defer span.End()

	util.SyncPassesTotal.Inc()

	var errs []error
	if err := e.pushOrders(ctx); err != nil {
		util.SyncPassFailuresTotal.WithLabelValues("push").Inc()
		e.logger.Warn("Order push failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("push: %w", err))
	}
	if err := e.pullOrders(ctx); err != nil {
		util.SyncPassFailuresTotal.WithLabelValues("pull").Inc()
		e.logger.Warn("Order pull failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("pull: %w", err))
	}
	if err := e.pullWarehouse(ctx); err != nil {
		util.SyncPassFailuresTotal.WithLabelValues("warehouse").Inc()
		e.logger.Warn("Warehouse pull failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("warehouse: %w", err))
	}
	return errors.Join(errs...)
}

// pushOrders pushes every dirty order: tombstones as per-id deletes, the
// rest as one batch upsert. Orders in ERROR are excluded; they stay dirty
// but wait for the explicit retry edge.
func (e *Engine) pushOrders(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "SyncEngine.pushOrders")
	defer span.End()

	start := time.Now()
	defer func() {
		util.PushLatency.Observe(time.Since(start).Seconds())
	}()

	dirty, err := e.store.ListDirtyOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dirty orders: %w", err)
	}

	var tombstones, regular []models.Order
	for _, order := range dirty {
		switch {
		case order.Deleted:
			tombstones = append(tombstones, order)
		case order.Status == models.StatusError:
			// Awaiting manual retry; not pushed.
		default:
			regular = append(regular, order)
		}
	}

	for _, order := range tombstones {
		if err := e.remote.DeleteOrder(ctx, order.ID); err != nil {
			// The tombstone stays for the next pass.
			return err
		}
		if err := e.store.RemoveOrder(ctx, order.ID); err != nil {
			return fmt.Errorf("failed to remove acknowledged tombstone %s: %w", order.ID, err)
		}
		util.TombstonesAckedTotal.Inc()
		e.logger.Info("Tombstone acknowledged", zap.String("order_id", order.ID))
	}

	if len(regular) == 0 {
		return nil
	}

	byID := make(map[string]*models.Order, len(regular))
	for i := range regular {
		order := &regular[i]
		byID[order.ID] = order
		if order.Status == models.StatusPending {
			if _, err := e.lifecycle.Submit(ctx, order.ID); err != nil {
				return fmt.Errorf("failed to mark order %s syncing: %w", order.ID, err)
			}
			order.Status = models.StatusSyncing
		}
	}

	outcomes, err := e.remote.PushOrders(ctx, regular, uuid.New().String())
	if err != nil {
		// The whole batch stays dirty; SYNCING orders are retried as-is.
		return err
	}

	for _, outcome := range outcomes {
		order, ok := byID[outcome.ID]
		if !ok {
			e.logger.Warn("Push outcome for unknown order", zap.String("order_id", outcome.ID))
			continue
		}

		switch outcome.Outcome {
		case remote.OutcomeApplied:
			if err := e.store.MarkOrderSynced(ctx, order.ID); err != nil {
				return err
			}
			if order.Status == models.StatusSyncing {
				if _, err := e.lifecycle.CompleteSubmit(ctx, order.ID); err != nil {
					return err
				}
			}
			util.OrdersPushedTotal.WithLabelValues(remote.OutcomeApplied).Inc()

		case remote.OutcomeSkipped:
			// Stays dirty for retry. A rejection reason additionally parks
			// the order in ERROR until a manual retry.
			if outcome.Message != "" && order.Status == models.StatusSyncing {
				if _, err := e.lifecycle.FailSubmit(ctx, order.ID, outcome.Message); err != nil {
					return err
				}
			}
			util.OrdersPushedTotal.WithLabelValues(remote.OutcomeSkipped).Inc()
			e.logger.Warn("Order upsert skipped by authority",
				zap.String("order_id", order.ID),
				zap.String("message", outcome.Message))

		default:
			e.logger.Warn("Unknown push outcome",
				zap.String("order_id", order.ID),
				zap.String("outcome", outcome.Outcome))
		}
	}

	return nil
}

// pullOrders merges remote order records through the ShouldAcceptRemote
// predicate. Records present locally but absent remotely are left alone:
// deletion is always local-initiated, the remote list is not authoritative
// for absence.
func (e *Engine) pullOrders(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "SyncEngine.pullOrders")
	defer span.End()

	start := time.Now()
	defer func() {
		util.PullLatency.Observe(time.Since(start).Seconds())
	}()

	remoteOrders, err := e.remote.FetchOrders(ctx)
	if err != nil {
		return err
	}

	for i := range remoteOrders {
		ro := remoteOrders[i]

		var meta *models.SyncMeta
		local, err := e.store.GetOrder(ctx, ro.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if local != nil {
			meta = &local.SyncMeta
		}

		if !models.ShouldAcceptRemote(meta, ro.UpdatedAt) {
			util.OrdersPullSkippedTotal.WithLabelValues(skipReason(meta)).Inc()
			continue
		}

		ro.NeedsSync = false
		ro.Deleted = false
		if err := e.store.SaveOrder(ctx, &ro); err != nil {
			return fmt.Errorf("failed to merge remote order %s: %w", ro.ID, err)
		}
		util.OrdersPulledTotal.Inc()
	}

	return nil
}

// pullWarehouse replaces the local warehouse replica with the remote
// snapshot.
func (e *Engine) pullWarehouse(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "SyncEngine.pullWarehouse")
	defer span.End()

	items, err := e.remote.FetchWarehouseItems(ctx)
	if err != nil {
		return err
	}

	if err := e.store.ReplaceWarehouseItems(ctx, items); err != nil {
		return fmt.Errorf("failed to replace warehouse snapshot: %w", err)
	}

	util.WarehouseSnapshotSize.Set(float64(len(items)))
	e.logger.Debug("Warehouse snapshot replaced", zap.Int("items", len(items)))
	return nil
}

func skipReason(meta *models.SyncMeta) string {
	switch {
	case meta == nil:
		return "unknown"
	case meta.NeedsSync:
		return "local_dirty"
	case meta.Deleted:
		return "tombstone"
	default:
		return "stale"
	}
}
