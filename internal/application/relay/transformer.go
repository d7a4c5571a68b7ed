package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/mikrosync/internal/domain/relay"
	"github.com/shopspring/decimal"
)

// ErpDateLayout is the date format the ERP expects on order lines (DD.MM.YYYY).
const ErpDateLayout = "02.01.2006"

// sourceDateLayouts are the timestamp renderings accepted from the source database.
// Fractional seconds are optional for every layout when parsing.
var sourceDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// WorkItem is the mutable line record the transform stages operate on.
type WorkItem struct {
	ProductID    string
	ProductCode  string
	Quantity     string
	UnitPrice    string
	OrderID      string
	OrderCode    string
	OrderDate    string
	CustomerCode string

	quantity   int64
	unitPrice  decimal.Decimal
	totalPrice decimal.Decimal
}

// TotalPrice returns the computed line total, or zero before the totals stage ran.
func (w *WorkItem) TotalPrice() decimal.Decimal {
	return w.totalPrice
}

// TransformInput is the per-batch context shared by all stages.
type TransformInput struct {
	Order        *relay.Order
	CustomerCode string
}

// Stage is one named step of the transformation pipeline.
type Stage struct {
	Name  string
	Apply func(items []WorkItem, in TransformInput) ([]WorkItem, error)
}

// Transformer maps raw order items to enriched ERP lines by running its stages in order.
type Transformer struct {
	stages []Stage
}

// NewTransformer creates a transformer with the standard five stages.
func NewTransformer() *Transformer {
	return NewTransformerWithStages(DefaultStages()...)
}

// NewTransformerWithStages creates a transformer running exactly the given stages.
func NewTransformerWithStages(stages ...Stage) *Transformer {
	return &Transformer{stages: stages}
}

// DefaultStages returns the standard stage sequence.
func DefaultStages() []Stage {
	return []Stage{
		StripProductIDStage(),
		InjectOrderFieldsStage(),
		ReformatOrderDateStage(),
		ComputeTotalsStage(),
		StripOrderIDStage(),
	}
}

// StageNames returns the names of the configured stages, in order.
func (t *Transformer) StageNames() []string {
	names := make([]string, len(t.stages))
	for i, s := range t.stages {
		names[i] = s.Name
	}
	return names
}

// Transform runs the pipeline over a batch of items belonging to order.
func (t *Transformer) Transform(items []relay.OrderItem, order *relay.Order, customerCode string) ([]relay.EnrichedOrderItem, error) {
	work := make([]WorkItem, len(items))
	for i, it := range items {
		work[i] = WorkItem{
			ProductID:   it.ProductID,
			ProductCode: it.ProductCode,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			OrderID:     it.OrderID,
		}
	}

	in := TransformInput{Order: order, CustomerCode: customerCode}
	var err error
	for _, stage := range t.stages {
		work, err = stage.Apply(work, in)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage.Name, err)
		}
	}

	out := make([]relay.EnrichedOrderItem, len(work))
	for i := range work {
		w := &work[i]
		out[i] = relay.EnrichedOrderItem{
			ProductCode:  w.ProductCode,
			Quantity:     w.quantity,
			UnitPrice:    w.unitPrice,
			TotalPrice:   w.totalPrice,
			OrderCode:    w.OrderCode,
			OrderDate:    w.OrderDate,
			CustomerCode: w.CustomerCode,
		}
	}
	return out, nil
}

// StripProductIDStage removes the internal product id from every item.
func StripProductIDStage() Stage {
	return Stage{
		Name: "strip_product_id",
		Apply: func(items []WorkItem, _ TransformInput) ([]WorkItem, error) {
			for i := range items {
				items[i].ProductID = ""
			}
			return items, nil
		},
	}
}

// InjectOrderFieldsStage copies order code, raw order date and customer code
// into the items whose order id matches the current order. Other items are untouched.
func InjectOrderFieldsStage() Stage {
	return Stage{
		Name: "inject_order_fields",
		Apply: func(items []WorkItem, in TransformInput) ([]WorkItem, error) {
			if in.Order == nil {
				return items, nil
			}
			for i := range items {
				if items[i].OrderID == "" || items[i].OrderID != in.Order.ID {
					continue
				}
				items[i].OrderCode = in.Order.Code
				items[i].OrderDate = in.Order.Date()
				items[i].CustomerCode = in.CustomerCode
			}
			return items, nil
		},
	}
}

// ReformatOrderDateStage rewrites injected order dates as DD.MM.YYYY.
// A line of the current order without any date is malformed; lines of other orders are left as they are.
func ReformatOrderDateStage() Stage {
	return Stage{
		Name: "reformat_order_date",
		Apply: func(items []WorkItem, in TransformInput) ([]WorkItem, error) {
			for i := range items {
				if items[i].OrderDate == "" {
					if in.Order != nil && items[i].OrderID != "" && items[i].OrderID == in.Order.ID {
						return nil, fmt.Errorf("%w: order %s has no order or creation date", relay.ErrMalformedDate, in.Order.Code)
					}
					continue
				}
				formatted, err := FormatErpDate(items[i].OrderDate)
				if err != nil {
					return nil, err
				}
				items[i].OrderDate = formatted
			}
			return items, nil
		},
	}
}

// ComputeTotalsStage parses quantity and unit price and sets total = quantity × unit price.
func ComputeTotalsStage() Stage {
	return Stage{
		Name: "compute_totals",
		Apply: func(items []WorkItem, _ TransformInput) ([]WorkItem, error) {
			for i := range items {
				qty, err := ParseQuantity(items[i].Quantity)
				if err != nil {
					return nil, err
				}
				price, err := ParsePrice(items[i].UnitPrice)
				if err != nil {
					return nil, err
				}
				items[i].quantity = qty
				items[i].unitPrice = price
				items[i].totalPrice = LineTotal(qty, price)
			}
			return items, nil
		},
	}
}

// StripOrderIDStage removes the internal order id from every item.
func StripOrderIDStage() Stage {
	return Stage{
		Name: "strip_order_id",
		Apply: func(items []WorkItem, _ TransformInput) ([]WorkItem, error) {
			for i := range items {
				items[i].OrderID = ""
			}
			return items, nil
		},
	}
}

// FormatErpDate parses a source timestamp and renders it as DD.MM.YYYY.
// The wall-clock date of the source value is kept; no zone conversion happens.
func FormatErpDate(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	for _, layout := range sourceDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(ErpDateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", relay.ErrMalformedDate, raw)
}

// ParseQuantity parses a non-negative integral quantity.
func ParseQuantity(raw string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: quantity %q is not numeric", relay.ErrInvalidAmount, raw)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: quantity %q is negative", relay.ErrInvalidAmount, raw)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: quantity %q is not a whole number", relay.ErrInvalidAmount, raw)
	}
	return d.IntPart(), nil
}

// ParsePrice parses a decimal unit price.
func ParsePrice(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: unit price %q is not numeric", relay.ErrInvalidAmount, raw)
	}
	return d, nil
}

// LineTotal returns quantity × unit price rounded to two places.
func LineTotal(quantity int64, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(quantity)).Round(2)
}
