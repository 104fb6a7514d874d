package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ordersync/internal/models"
	"ordersync/internal/store"
	"ordersync/internal/util"
	"ordersync/internal/warehouse"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrIllegalTransition is returned when a requested status change is not a
// legal edge of the order state machine.
var ErrIllegalTransition = errors.New("illegal status transition")

// ErrNotEditable is returned when an order can no longer be edited locally.
var ErrNotEditable = errors.New("order is not editable in its current status")

// Service governs the legal lifecycle of orders and keeps warehouse holds in
// step with every transition.
type Service struct {
	store     *store.Store
	warehouse *warehouse.Manager
	resolver  PackagingResolver
	logger    *zap.Logger
	deviceID  string
	now       func() time.Time
}

// NewService creates a new lifecycle service. A nil resolver keeps lines as
// entered.
func NewService(st *store.Store, wm *warehouse.Manager, resolver PackagingResolver, deviceID string) *Service {
	if resolver == nil {
		resolver = passthroughResolver{}
	}
	return &Service{
		store:     st,
		warehouse: wm,
		resolver:  resolver,
		logger:    util.GetLogger(),
		deviceID:  deviceID,
		now:       time.Now,
	}
}

// SetClock overrides the service clock. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// LineRequest is one user-facing order position. GroupKey is optional: edits
// pass the existing group key so reservation metadata survives line changes
// within a package group; creation leaves it empty and a fresh key is issued.
type LineRequest struct {
	GroupKey          string          `json:"group_key,omitempty"`
	ArticleID         string          `json:"article_id"`
	Description       string          `json:"description"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Discount          decimal.Decimal `json:"discount"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	WarehouseQuantity int             `json:"warehouse_quantity"`
	WarehouseItemID   string          `json:"warehouse_item_id"`
}

// CreateOrderRequest creates a new local order.
type CreateOrderRequest struct {
	CustomerID string        `json:"customer_id"`
	Lines      []LineRequest `json:"lines"`
	Draft      bool          `json:"draft"`
}

// Create validates the request, resolves packaging variants, places
// warehouse holds and persists the order as dirty. When every line is fully
// covered by reserved stock the order short-circuits to COMPLETED_WAREHOUSE
// and the holds are converted to sales; no remote submission happens for it.
//
// Tuples that cannot be reserved do not abort the order: the affected lines
// fall back to remote fulfillment and the rejections are returned as a
// warning alongside the created order.
func (s *Service) Create(ctx context.Context, req *CreateOrderRequest) (*models.Order, *warehouse.ReserveResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderLifecycle.Create")
	defer span.End()

	if err := s.validate(ctx, req.CustomerID, req.Lines); err != nil {
		return nil, nil, err
	}

	orderID := uuid.New().String()
	lines, err := s.resolveLines(ctx, orderID, req.Lines)
	if err != nil {
		return nil, nil, err
	}

	reserveResult, err := s.warehouse.Reserve(ctx, orderID, reservationRequests(lines))
	if err != nil {
		return nil, nil, err
	}
	applyRejections(lines, reserveResult.Rejected)

	now := s.now()
	order := &models.Order{
		ID:         orderID,
		CustomerID: req.CustomerID,
		Status:     models.StatusPending,
		CreatedAt:  now,
		Lines:      lines,
		SyncMeta: models.SyncMeta{
			UpdatedAt: now,
			NeedsSync: true,
			DeviceID:  s.deviceID,
		},
	}
	if req.Draft {
		order.Status = models.StatusDraft
	}

	if warehouseOnly(req.Lines) && reserveResult.AllReserved() {
		saleRef := "WH-" + orderID[:8]
		if err := s.warehouse.MarkSold(ctx, orderID, saleRef); err != nil {
			return nil, nil, err
		}
		order.Status = models.StatusCompletedWarehouse
	}

	if err := s.store.SaveOrder(ctx, order); err != nil {
		return nil, nil, fmt.Errorf("failed to save order: %w", err)
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("status", string(order.Status)),
		zap.Int("lines", len(order.Lines)),
		zap.Int("rejected_holds", len(reserveResult.Rejected)))

	return order, reserveResult, nil
}

// Promote moves a draft to PENDING so the next sync pass submits it.
func (s *Service) Promote(ctx context.Context, orderID string) (*models.Order, error) {
	return s.transition(ctx, orderID, models.StatusPending, "")
}

// Submit moves a PENDING order to SYNCING. Called by the sync engine right
// before the order is pushed.
func (s *Service) Submit(ctx context.Context, orderID string) (*models.Order, error) {
	return s.transition(ctx, orderID, models.StatusSyncing, "")
}

// CompleteSubmit moves a SYNCING order to COMPLETED after the remote
// authority acknowledged the upsert.
func (s *Service) CompleteSubmit(ctx context.Context, orderID string) (*models.Order, error) {
	return s.transition(ctx, orderID, models.StatusCompleted, "")
}

// FailSubmit moves a SYNCING order to ERROR with the remote rejection reason
// attached. The order waits for a manual Retry.
func (s *Service) FailSubmit(ctx context.Context, orderID, reason string) (*models.Order, error) {
	return s.transition(ctx, orderID, models.StatusError, reason)
}

// Retry is the single backward edge: ERROR -> PENDING, incrementing the
// retry counter and re-dirtying the order.
func (s *Service) Retry(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(order.Status, models.StatusPending) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, models.StatusPending)
	}

	order.Status = models.StatusPending
	order.RetryCount++
	order.ErrorMessage = ""
	order.NeedsSync = true
	order.UpdatedAt = s.now()

	if err := s.store.SaveOrder(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("Order retry requested",
		zap.String("order_id", order.ID),
		zap.Int("retry_count", order.RetryCount))
	return order, nil
}

// Delete releases the order's warehouse holds and tombstones it. The row
// stays local until the remote delete is acknowledged by a sync pass.
func (s *Service) Delete(ctx context.Context, orderID string) error {
	ctx, span := util.StartSpan(ctx, "OrderLifecycle.Delete")
	defer span.End()

	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return err
	}

	if err := s.warehouse.Release(ctx, orderID); err != nil {
		return err
	}
	if err := s.store.TombstoneOrder(ctx, orderID, s.now()); err != nil {
		return err
	}

	s.logger.Info("Order tombstoned", zap.String("order_id", orderID))
	return nil
}

// EditSession is an open edit of one order. The session has already released
// the order's holds; it must end in exactly one Commit or Abandon.
type EditSession struct {
	svc      *Service
	original *models.Order
	holds    []models.Reservation
	closed   bool
}

// BeginEdit opens an edit session for an order in an editable status
// (DRAFT, PENDING or ERROR) and releases its current holds.
func (s *Service) BeginEdit(ctx context.Context, orderID string) (*EditSession, error) {
	ctx, span := util.StartSpan(ctx, "OrderLifecycle.BeginEdit")
	defer span.End()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Deleted {
		return nil, store.ErrNotFound
	}
	if !order.Status.Editable() {
		return nil, fmt.Errorf("%w: status %s", ErrNotEditable, order.Status)
	}

	holds, err := s.store.ReservationsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.warehouse.Release(ctx, orderID); err != nil {
		return nil, err
	}

	return &EditSession{svc: s, original: order, holds: holds}, nil
}

// Commit applies the edited line set: packaging is re-resolved, reservation
// metadata is transferred within package groups, and new holds are placed.
func (es *EditSession) Commit(ctx context.Context, req *CreateOrderRequest) (*models.Order, *warehouse.ReserveResult, error) {
	if es.closed {
		return nil, nil, errors.New("edit session already closed")
	}
	es.closed = true

	s := es.svc
	order := es.original

	if err := s.validate(ctx, req.CustomerID, req.Lines); err != nil {
		// Validation failed after the holds were already released; put the
		// original holds back so a rejected edit does not lose stock.
		if restoreErr := s.warehouse.Restore(ctx, es.holds); restoreErr != nil {
			s.logger.Error("Failed to restore holds after rejected edit",
				zap.String("order_id", order.ID), zap.Error(restoreErr))
		}
		return nil, nil, err
	}

	lines, err := s.resolveLines(ctx, order.ID, req.Lines)
	if err != nil {
		return nil, nil, err
	}
	transferGroupHolds(order.Lines, lines)

	reserveResult, err := s.warehouse.Reserve(ctx, order.ID, reservationRequests(lines))
	if err != nil {
		return nil, nil, err
	}
	applyRejections(lines, reserveResult.Rejected)

	order.CustomerID = req.CustomerID
	order.Lines = lines
	order.NeedsSync = true
	order.UpdatedAt = s.now()

	if err := s.store.SaveOrder(ctx, order); err != nil {
		return nil, nil, fmt.Errorf("failed to save edited order: %w", err)
	}

	s.logger.Info("Order edited",
		zap.String("order_id", order.ID),
		zap.Int("lines", len(order.Lines)),
		zap.Int("rejected_holds", len(reserveResult.Rejected)))
	return order, reserveResult, nil
}

// Abandon is the compensating action for an edit that never commits (the
// user navigated away): the session's released holds are re-applied.
func (es *EditSession) Abandon(ctx context.Context) error {
	if es.closed {
		return nil
	}
	es.closed = true
	return es.svc.warehouse.Restore(ctx, es.holds)
}

// transition applies one guarded edge of the state machine.
func (s *Service) transition(ctx context.Context, orderID string, to models.Status, errorMessage string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(order.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, to)
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, to, errorMessage); err != nil {
		return nil, err
	}
	order.Status = to
	order.ErrorMessage = errorMessage
	return order, nil
}

// validate enforces the creation invariants: a resolvable customer, at least
// one line, positive quantities and coherent warehouse sourcing.
func (s *Service) validate(ctx context.Context, customerID string, lines []LineRequest) error {
	if customerID == "" {
		return errors.New("customer reference is required")
	}
	if len(lines) == 0 {
		return errors.New("order requires at least one line")
	}

	for i, line := range lines {
		if line.ArticleID == "" {
			return fmt.Errorf("line %d: article reference is required", i)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d: quantity must be positive", i)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("line %d: unit price must not be negative", i)
		}
		if line.WarehouseQuantity < 0 || line.WarehouseQuantity > line.Quantity {
			return fmt.Errorf("line %d: warehouse quantity %d out of range 0..%d",
				i, line.WarehouseQuantity, line.Quantity)
		}
		if line.WarehouseQuantity > 0 {
			if line.WarehouseItemID == "" {
				return fmt.Errorf("line %d: warehouse item reference is required", i)
			}
			if _, err := s.store.GetWarehouseItem(ctx, line.WarehouseItemID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("line %d: unknown warehouse item %s", i, line.WarehouseItemID)
				}
				return err
			}
		}
	}
	return nil
}

// resolveLines expands each requested position through the packaging
// resolver. Each position becomes one group; the first variant line that
// draws on warehouse stock holds the group's reservation metadata.
func (s *Service) resolveLines(ctx context.Context, orderID string, reqs []LineRequest) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	for _, req := range reqs {
		groupKey := req.GroupKey
		if groupKey == "" {
			groupKey = uuid.New().String()
		}
		input := models.OrderLine{
			ID:                uuid.New().String(),
			OrderID:           orderID,
			ArticleID:         req.ArticleID,
			Description:       req.Description,
			Quantity:          req.Quantity,
			UnitPrice:         req.UnitPrice,
			Discount:          req.Discount,
			TaxRate:           req.TaxRate,
			WarehouseQuantity: req.WarehouseQuantity,
			WarehouseItemID:   req.WarehouseItemID,
			GroupKey:          groupKey,
		}

		variants, err := s.resolver.Resolve(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("packaging resolution failed for article %s: %w", req.ArticleID, err)
		}

		holderSet := false
		for j := range variants {
			v := &variants[j]
			if v.ID == "" || (j > 0 && v.ID == input.ID) {
				v.ID = uuid.New().String()
			}
			v.OrderID = orderID
			v.GroupKey = groupKey
			if !holderSet && v.WarehouseQuantity > 0 {
				v.HoldsReservation = true
				holderSet = true
			} else {
				v.HoldsReservation = false
				v.WarehouseQuantity = 0
				v.WarehouseItemID = ""
			}
			lines = append(lines, *v)
		}
	}
	return lines, nil
}

// reservationRequests collects the holds implied by the holder lines.
func reservationRequests(lines []models.OrderLine) []warehouse.ReservationRequest {
	var reqs []warehouse.ReservationRequest
	for _, line := range lines {
		if line.HoldsReservation && line.WarehouseQuantity > 0 {
			reqs = append(reqs, warehouse.ReservationRequest{
				WarehouseItemID: line.WarehouseItemID,
				GroupKey:        line.GroupKey,
				Quantity:        line.WarehouseQuantity,
			})
		}
	}
	return reqs
}

// applyRejections downgrades lines whose holds were rejected: their
// warehouse portion falls back to remote fulfillment.
func applyRejections(lines []models.OrderLine, rejected []warehouse.InsufficientStock) {
	if len(rejected) == 0 {
		return
	}
	rejectedItems := map[string]bool{}
	for _, r := range rejected {
		rejectedItems[r.WarehouseItemID] = true
	}
	for i := range lines {
		line := &lines[i]
		if line.HoldsReservation && rejectedItems[line.WarehouseItemID] {
			line.HoldsReservation = false
			line.WarehouseQuantity = 0
			line.WarehouseItemID = ""
		}
	}
}

// warehouseOnly reports whether every requested position is fully covered by
// warehouse stock, i.e. the order needs no remote submission. Evaluated on
// the user-facing positions, before packaging expansion.
func warehouseOnly(lines []LineRequest) bool {
	for _, line := range lines {
		if line.WarehouseQuantity != line.Quantity {
			return false
		}
	}
	return len(lines) > 0
}
