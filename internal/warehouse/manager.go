package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ordersync/internal/models"
	"ordersync/internal/store"
	"ordersync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager maintains the reserved + sold <= total invariant for warehouse
// stock. All quantity changes go through guarded UPDATEs in the store, so the
// invariant cannot be violated even by interleaved callers.
type Manager struct {
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a new reservation manager.
func NewManager(st *store.Store) *Manager {
	return &Manager{
		store:  st,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// SetClock overrides the manager clock. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// ReservationRequest asks for a hold of Quantity units on one warehouse item,
// on behalf of an order line group.
type ReservationRequest struct {
	WarehouseItemID string
	GroupKey        string
	Quantity        int
}

// InsufficientStock describes one rejected reservation tuple. It is a result
// value, not an error: the remaining tuples of the same call still apply.
type InsufficientStock struct {
	WarehouseItemID string
	Requested       int
	Available       int
}

func (i InsufficientStock) String() string {
	return fmt.Sprintf("insufficient stock on %s: requested=%d, available=%d",
		i.WarehouseItemID, i.Requested, i.Available)
}

// ReserveResult reports the per-tuple outcome of a Reserve call.
type ReserveResult struct {
	Reserved []models.Reservation
	Rejected []InsufficientStock
}

// AllReserved reports whether every requested tuple was fulfilled.
func (r *ReserveResult) AllReserved() bool {
	return len(r.Rejected) == 0
}

// Reserve places holds for an order. Each tuple succeeds or fails on its own:
// a tuple that would push reserved + sold past total is rejected with the
// currently available quantity, while the other tuples still apply.
func (m *Manager) Reserve(ctx context.Context, orderID string, requests []ReservationRequest) (*ReserveResult, error) {
	ctx, span := util.StartSpan(ctx, "WarehouseManager.Reserve")
	defer span.End()

	result := &ReserveResult{}
	now := m.now()

	for _, req := range requests {
		if req.Quantity <= 0 {
			return nil, fmt.Errorf("invalid reservation quantity %d for item %s", req.Quantity, req.WarehouseItemID)
		}

		ok, err := m.store.AdjustReserved(ctx, req.WarehouseItemID, req.Quantity, now)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve stock on %s: %w", req.WarehouseItemID, err)
		}

		if !ok {
			available := 0
			if item, err := m.store.GetWarehouseItem(ctx, req.WarehouseItemID); err == nil {
				available = item.Available()
			} else if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}

			util.ReservationsFailedTotal.WithLabelValues("insufficient_stock").Inc()
			m.logger.Warn("Reservation rejected",
				zap.String("order_id", orderID),
				zap.String("item_id", req.WarehouseItemID),
				zap.Int("requested", req.Quantity),
				zap.Int("available", available))

			result.Rejected = append(result.Rejected, InsufficientStock{
				WarehouseItemID: req.WarehouseItemID,
				Requested:       req.Quantity,
				Available:       available,
			})
			continue
		}

		reservation := models.Reservation{
			ID:              uuid.New().String(),
			OrderID:         orderID,
			GroupKey:        req.GroupKey,
			WarehouseItemID: req.WarehouseItemID,
			Quantity:        req.Quantity,
			CreatedAt:       now,
		}
		if err := m.store.InsertReservation(ctx, &reservation); err != nil {
			// Roll the guarded increment back so the hold is not orphaned.
			if _, rbErr := m.store.AdjustReserved(ctx, req.WarehouseItemID, -req.Quantity, now); rbErr != nil {
				m.logger.Error("Failed to roll back reservation increment",
					zap.String("item_id", req.WarehouseItemID), zap.Error(rbErr))
			}
			return nil, fmt.Errorf("failed to record reservation: %w", err)
		}

		result.Reserved = append(result.Reserved, reservation)
	}

	return result, nil
}

// Release drops all holds for an order and returns the reserved quantities.
// Releasing an order with no active holds is a no-op.
func (m *Manager) Release(ctx context.Context, orderID string) error {
	ctx, span := util.StartSpan(ctx, "WarehouseManager.Release")
	defer span.End()

	reservations, err := m.store.ReservationsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load reservations: %w", err)
	}
	if len(reservations) == 0 {
		return nil
	}

	now := m.now()
	for _, r := range reservations {
		ok, err := m.store.AdjustReserved(ctx, r.WarehouseItemID, -r.Quantity, now)
		if err != nil {
			return fmt.Errorf("failed to release stock on %s: %w", r.WarehouseItemID, err)
		}
		if !ok {
			// The item vanished or was reset by a warehouse snapshot pull;
			// the hold is stale, dropping the row is the right end state.
			m.logger.Warn("Release skipped stale reservation",
				zap.String("order_id", orderID),
				zap.String("item_id", r.WarehouseItemID),
				zap.Int("quantity", r.Quantity))
		}
	}

	return m.store.DeleteReservationsByOrder(ctx, orderID)
}

// MarkSold converts all holds of an order into sold stock and journals the
// sale under saleRef. Irreversible.
func (m *Manager) MarkSold(ctx context.Context, orderID, saleRef string) error {
	ctx, span := util.StartSpan(ctx, "WarehouseManager.MarkSold")
	defer span.End()

	reservations, err := m.store.ReservationsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load reservations: %w", err)
	}

	now := m.now()
	for _, r := range reservations {
		ok, err := m.store.ConvertReservedToSold(ctx, r.WarehouseItemID, r.Quantity, now)
		if err != nil {
			return fmt.Errorf("failed to mark stock sold on %s: %w", r.WarehouseItemID, err)
		}
		if !ok {
			util.ReservationsFailedTotal.WithLabelValues("stale_hold").Inc()
			m.logger.Warn("MarkSold skipped stale reservation",
				zap.String("order_id", orderID),
				zap.String("item_id", r.WarehouseItemID),
				zap.Int("quantity", r.Quantity))
			continue
		}

		sale := models.Sale{
			ID:              uuid.New().String(),
			OrderID:         orderID,
			WarehouseItemID: r.WarehouseItemID,
			Quantity:        r.Quantity,
			SaleRef:         saleRef,
			SoldAt:          now,
		}
		if err := m.store.InsertSale(ctx, &sale); err != nil {
			return fmt.Errorf("failed to journal sale: %w", err)
		}
	}

	return m.store.DeleteReservationsByOrder(ctx, orderID)
}

// Restore re-applies a previously released set of holds. Used as the
// compensating action when an edit session is abandoned.
func (m *Manager) Restore(ctx context.Context, reservations []models.Reservation) error {
	ctx, span := util.StartSpan(ctx, "WarehouseManager.Restore")
	defer span.End()

	now := m.now()
	for _, r := range reservations {
		ok, err := m.store.AdjustReserved(ctx, r.WarehouseItemID, r.Quantity, now)
		if err != nil {
			return fmt.Errorf("failed to restore hold on %s: %w", r.WarehouseItemID, err)
		}
		if !ok {
			m.logger.Warn("Restore could not re-apply hold",
				zap.String("order_id", r.OrderID),
				zap.String("item_id", r.WarehouseItemID),
				zap.Int("quantity", r.Quantity))
			continue
		}
		if err := m.store.InsertReservation(ctx, &r); err != nil {
			return fmt.Errorf("failed to record restored hold: %w", err)
		}
	}
	return nil
}
