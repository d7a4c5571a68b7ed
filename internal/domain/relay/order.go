package relay

import (
	"github.com/shopspring/decimal"
)

// Order is a snapshot of a row of the source order table.
// Date columns are kept as the text the store returned; the transformer parses them.
type Order struct {
	ID         string
	Code       string
	CustomerID string
	OrderDate  string
	CreatedAt  string
}

// Date returns the raw date injected into order lines.
// The order date column wins; the creation timestamp is used when it is empty.
func (o *Order) Date() string {
	if o.OrderDate != "" {
		return o.OrderDate
	}
	return o.CreatedAt
}

// OrderItem is a raw line of the source order item table.
// Quantity and UnitPrice are textual snapshots and are validated by the transformer.
type OrderItem struct {
	ProductID   string
	ProductCode string
	Quantity    string
	UnitPrice   string
	OrderID     string
}

// EnrichedOrderItem is the final line shape sent to the ERP.
// It has no field for internal order or product ids.
type EnrichedOrderItem struct {
	ProductCode  string
	Quantity     int64
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
	OrderCode    string
	OrderDate    string // DD.MM.YYYY
	CustomerCode string
}

// Extraction is the denormalized result of one extractor pass.
type Extraction struct {
	Order        *Order
	CustomerCode string
	Items        []OrderItem
}
