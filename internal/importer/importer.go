package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ordersync/internal/models"

	"github.com/google/uuid"
)

// ParseWarehouseCSV reads a bulk stock dump into warehouse items. The first
// row is a header; columns are matched by name so exports with extra or
// reordered columns still load. Required: article_id, total_quantity.
// Optional: id, description, reserved_quantity, sold_quantity, container.
func ParseWarehouseCSV(r io.Reader) ([]models.WarehouseItem, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("empty import file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"article_id", "total_quantity"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var items []models.WarehouseItem
	var rowErrs []string
	now := time.Now()

	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		item := models.WarehouseItem{
			ID:          field(record, "id"),
			ArticleID:   field(record, "article_id"),
			Description: field(record, "description"),
			Container:   field(record, "container"),
			UpdatedAt:   now,
		}
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		if item.ArticleID == "" {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: article_id is empty", row))
			continue
		}

		item.TotalQuantity, err = parseQuantity(field(record, "total_quantity"))
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: total_quantity: %v", row, err))
			continue
		}
		if item.TotalQuantity < 0 {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: total_quantity is negative", row))
			continue
		}

		if raw := field(record, "reserved_quantity"); raw != "" {
			if item.ReservedQuantity, err = parseQuantity(raw); err != nil {
				rowErrs = append(rowErrs, fmt.Sprintf("row %d: reserved_quantity: %v", row, err))
				continue
			}
		}
		if raw := field(record, "sold_quantity"); raw != "" {
			if item.SoldQuantity, err = parseQuantity(raw); err != nil {
				rowErrs = append(rowErrs, fmt.Sprintf("row %d: sold_quantity: %v", row, err))
				continue
			}
		}

		if item.ReservedQuantity+item.SoldQuantity > item.TotalQuantity {
			rowErrs = append(rowErrs, fmt.Sprintf(
				"row %d: reserved %d + sold %d exceeds total %d",
				row, item.ReservedQuantity, item.SoldQuantity, item.TotalQuantity))
			continue
		}

		items = append(items, item)
	}

	if len(rowErrs) > 0 {
		return nil, fmt.Errorf("import rejected: %s", strings.Join(rowErrs, "; "))
	}
	return items, nil
}

func parseQuantity(raw string) (int, error) {
	if raw == "" {
		return 0, errors.New("value is empty")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("not an integer")
	}
	return n, nil
}
