package lifecycle

import (
	"context"

	"ordersync/internal/models"
)

// PackagingResolver expands a user-facing order line into the underlying
// package-variant lines (e.g. one position sold as a mix of cartons and
// single units). All lines produced for one input share the input's group
// key. The resolver is an external collaborator; the default keeps lines
// as entered.
type PackagingResolver interface {
	Resolve(ctx context.Context, line models.OrderLine) ([]models.OrderLine, error)
}

type passthroughResolver struct{}

func (passthroughResolver) Resolve(_ context.Context, line models.OrderLine) ([]models.OrderLine, error) {
	return []models.OrderLine{line}, nil
}

// transferGroupHolds ensures reservation metadata survives line edits within
// a package-variant group: when the line that held the group's warehouse
// reservation is removed but a sibling with the same group key remains, the
// metadata moves to that sibling instead of being dropped.
func transferGroupHolds(oldLines, newLines []models.OrderLine) {
	type holdInfo struct {
		warehouseQuantity int
		warehouseItemID   string
	}

	oldHolders := map[string]holdInfo{}
	for _, l := range oldLines {
		if l.HoldsReservation && l.GroupKey != "" {
			oldHolders[l.GroupKey] = holdInfo{
				warehouseQuantity: l.WarehouseQuantity,
				warehouseItemID:   l.WarehouseItemID,
			}
		}
	}

	groupHasHolder := map[string]bool{}
	for i := range newLines {
		if newLines[i].HoldsReservation && newLines[i].GroupKey != "" {
			groupHasHolder[newLines[i].GroupKey] = true
		}
	}

	for i := range newLines {
		line := &newLines[i]
		old, ok := oldHolders[line.GroupKey]
		if !ok || groupHasHolder[line.GroupKey] {
			continue
		}
		// Promote the first surviving sibling to holder.
		line.HoldsReservation = true
		if line.WarehouseQuantity == 0 {
			line.WarehouseQuantity = old.warehouseQuantity
			if line.WarehouseQuantity > line.Quantity {
				line.WarehouseQuantity = line.Quantity
			}
			line.WarehouseItemID = old.warehouseItemID
		}
		groupHasHolder[line.GroupKey] = true
	}
}
