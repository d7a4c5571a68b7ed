package relay

import (
	"testing"

	"github.com/erp/mikrosync/internal/domain/relay"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder() *relay.Order {
	return &relay.Order{
		ID:         "42",
		Code:       "SIP-100",
		CustomerID: "7",
		OrderDate:  "2024-03-05T10:00:00",
		CreatedAt:  "2024-03-05T10:00:01",
	}
}

func TestTransformer_Transform(t *testing.T) {
	tr := NewTransformer()

	items := []relay.OrderItem{
		{ProductID: "1", ProductCode: "P1", Quantity: "3", UnitPrice: "12.50", OrderID: "42"},
		{ProductID: "2", ProductCode: "P2", Quantity: "0", UnitPrice: "9.99", OrderID: "42"},
	}

	out, err := tr.Transform(items, sampleOrder(), "CUST-7")
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "P1", out[0].ProductCode)
	assert.Equal(t, int64(3), out[0].Quantity)
	assert.True(t, decimal.RequireFromString("37.50").Equal(out[0].TotalPrice))
	assert.Equal(t, "SIP-100", out[0].OrderCode)
	assert.Equal(t, "05.03.2024", out[0].OrderDate)
	assert.Equal(t, "CUST-7", out[0].CustomerCode)

	assert.True(t, out[1].TotalPrice.IsZero())
}

func TestTransformer_DefaultStageOrder(t *testing.T) {
	assert.Equal(t, []string{
		"strip_product_id",
		"inject_order_fields",
		"reformat_order_date",
		"compute_totals",
		"strip_order_id",
	}, NewTransformer().StageNames())
}

func TestTransformer_ItemsOfOtherOrdersAreNotInjected(t *testing.T) {
	items := []relay.OrderItem{
		{ProductCode: "P1", Quantity: "1", UnitPrice: "1", OrderID: "42"},
		{ProductCode: "P9", Quantity: "1", UnitPrice: "1", OrderID: "41"},
	}

	out, err := NewTransformer().Transform(items, sampleOrder(), "CUST-7")
	require.NoError(t, err)

	assert.Equal(t, "SIP-100", out[0].OrderCode)
	assert.Empty(t, out[1].OrderCode)
	assert.Empty(t, out[1].OrderDate)
	assert.Empty(t, out[1].CustomerCode)
}

func TestTransformer_OutOfOrderStagesAreObservable(t *testing.T) {
	tr := NewTransformerWithStages(
		StripProductIDStage(),
		StripOrderIDStage(),
		InjectOrderFieldsStage(),
		ReformatOrderDateStage(),
		ComputeTotalsStage(),
	)
	items := []relay.OrderItem{
		{ProductID: "1", ProductCode: "P1", Quantity: "2", UnitPrice: "10.0", OrderID: "42"},
	}

	out, err := tr.Transform(items, sampleOrder(), "CUST-7")
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Empty(t, out[0].OrderCode)
	assert.Empty(t, out[0].OrderDate)
	assert.Empty(t, out[0].CustomerCode)
}

func TestTransformer_OrderDateFallsBackToCreatedAt(t *testing.T) {
	order := sampleOrder()
	order.OrderDate = ""
	order.CreatedAt = "2023-12-31 23:59:59.123+03"

	out, err := NewTransformer().Transform([]relay.OrderItem{
		{ProductCode: "P1", Quantity: "1", UnitPrice: "5", OrderID: "42"},
	}, order, "C")
	require.NoError(t, err)
	assert.Equal(t, "31.12.2023", out[0].OrderDate)
}

func TestTransformer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		order   func(*relay.Order)
		item    relay.OrderItem
		wantErr error
	}{
		{
			name:    "malformed date",
			order:   func(o *relay.Order) { o.OrderDate = "yesterday" },
			item:    relay.OrderItem{Quantity: "1", UnitPrice: "1", OrderID: "42"},
			wantErr: relay.ErrMalformedDate,
		},
		{
			name: "no order or creation date",
			order: func(o *relay.Order) {
				o.OrderDate = ""
				o.CreatedAt = ""
			},
			item:    relay.OrderItem{Quantity: "1", UnitPrice: "1", OrderID: "42"},
			wantErr: relay.ErrMalformedDate,
		},
		{
			name:    "non numeric quantity",
			item:    relay.OrderItem{Quantity: "two", UnitPrice: "1", OrderID: "42"},
			wantErr: relay.ErrInvalidAmount,
		},
		{
			name:    "fractional quantity",
			item:    relay.OrderItem{Quantity: "1.5", UnitPrice: "1", OrderID: "42"},
			wantErr: relay.ErrInvalidAmount,
		},
		{
			name:    "negative quantity",
			item:    relay.OrderItem{Quantity: "-1", UnitPrice: "1", OrderID: "42"},
			wantErr: relay.ErrInvalidAmount,
		},
		{
			name:    "empty price",
			item:    relay.OrderItem{Quantity: "1", UnitPrice: "", OrderID: "42"},
			wantErr: relay.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := sampleOrder()
			if tt.order != nil {
				tt.order(order)
			}
			out, err := NewTransformer().Transform([]relay.OrderItem{tt.item}, order, "C")
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFormatErpDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-05T10:00:00", "05.03.2024"},
		{"2024-03-05T10:00:00Z", "05.03.2024"},
		{"2024-03-05T23:30:00+03:00", "05.03.2024"},
		{"2024-03-05T10:00:00.123456", "05.03.2024"},
		{"2024-03-05 10:00:00", "05.03.2024"},
		{"2024-03-05 10:00:00.5+00:00", "05.03.2024"},
		{"2024-03-05", "05.03.2024"},
		{" 2024-11-30 ", "30.11.2024"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := FormatErpDate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FormatErpDate("05/03/2024")
	assert.ErrorIs(t, err, relay.ErrMalformedDate)
}

func TestLineTotal(t *testing.T) {
	assert.Equal(t, "37.50", LineTotal(3, decimal.RequireFromString("12.50")).StringFixed(2))
	assert.Equal(t, "0.00", LineTotal(0, decimal.RequireFromString("12.50")).StringFixed(2))
	assert.Equal(t, "20.00", LineTotal(2, decimal.RequireFromString("10.0")).StringFixed(2))
	assert.Equal(t, "0.67", LineTotal(2, decimal.RequireFromString("0.333")).StringFixed(2))
}

func TestParseQuantity(t *testing.T) {
	q, err := ParseQuantity("2.000")
	require.NoError(t, err)
	assert.Equal(t, int64(2), q)

	q, err = ParseQuantity(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, int64(7), q)
}

func TestTransformer_UndatedItemsOfOtherOrdersPass(t *testing.T) {
	order := sampleOrder()
	order.OrderDate = ""
	order.CreatedAt = ""
	items := []relay.OrderItem{
		{ProductCode: "P9", Quantity: "1", UnitPrice: "1", OrderID: "41"},
	}

	out, err := NewTransformer().Transform(items, order, "C")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Empty(t, out[0].OrderDate)
}
