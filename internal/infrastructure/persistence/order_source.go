package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erp/mikrosync/internal/domain/relay"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// SourceTables names the shop tables the relay reads
type SourceTables struct {
	Orders     string
	OrderItems string
	Users      string
	Products   string
}

// DefaultSourceTables returns the table names of the shop schema
func DefaultSourceTables() SourceTables {
	return SourceTables{
		Orders:     "Orders",
		OrderItems: "OrderItems",
		Users:      "Users",
		Products:   "Products",
	}
}

// orderRow mirrors the columns read from the orders table.
// Every column is scanned as text; the transformer validates values.
type orderRow struct {
	ID         sql.NullString `gorm:"column:Id"`
	Code       sql.NullString `gorm:"column:Code"`
	CustomerID sql.NullString `gorm:"column:CustomerId"`
	OrderDate  sql.NullString `gorm:"column:OrderDate"`
	CreatedAt  sql.NullString `gorm:"column:CreatedAt"`
}

func (r *orderRow) toDomain() *relay.Order {
	return &relay.Order{
		ID:         r.ID.String,
		Code:       r.Code.String,
		CustomerID: r.CustomerID.String,
		OrderDate:  r.OrderDate.String,
		CreatedAt:  r.CreatedAt.String,
	}
}

type orderItemRow struct {
	ProductID sql.NullString `gorm:"column:ProductId"`
	Quantity  sql.NullString `gorm:"column:Quantity"`
	Price     sql.NullString `gorm:"column:Price"`
	OrderID   sql.NullString `gorm:"column:OrderId"`
}

type codeRow struct {
	Code sql.NullString `gorm:"column:Code"`
}

// GormOrderSource implements relay.OrderSource on top of GORM
type GormOrderSource struct {
	db           *gorm.DB
	queryTimeout time.Duration

	latestOrderSQL  string
	customerCodeSQL string
	orderItemsSQL   string
	productCodeSQL  string
}

// NewGormOrderSource creates an order source. A zero queryTimeout disables the per-query deadline.
func NewGormOrderSource(db *gorm.DB, tables SourceTables, queryTimeout time.Duration) *GormOrderSource {
	q := pq.QuoteIdentifier
	return &GormOrderSource{
		db:           db,
		queryTimeout: queryTimeout,
		latestOrderSQL: fmt.Sprintf(
			"SELECT %s FROM %s ORDER BY %s DESC NULLS LAST, %s DESC LIMIT 1",
			columnList("Id", "Code", "CustomerId", "OrderDate", "CreatedAt"),
			q(tables.Orders), q("CreatedAt"), q("Id"),
		),
		customerCodeSQL: fmt.Sprintf(
			"SELECT %s FROM %s WHERE %s = ? LIMIT 1",
			q("Code"), q(tables.Users), q("Id"),
		),
		orderItemsSQL: fmt.Sprintf(
			"SELECT %s FROM %s WHERE %s = ?",
			columnList("ProductId", "Quantity", "Price", "OrderId"),
			q(tables.OrderItems), q("OrderId"),
		),
		productCodeSQL: fmt.Sprintf(
			"SELECT %s FROM %s WHERE %s = ? LIMIT 1",
			q("Code"), q(tables.Products), q("Id"),
		),
	}
}

func columnList(cols ...string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func (s *GormOrderSource) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// LatestOrder returns the order with the greatest creation timestamp, ties broken by id
func (s *GormOrderSource) LatestOrder(ctx context.Context) (*relay.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []orderRow
	if err := s.db.WithContext(ctx).Raw(s.latestOrderSQL).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: latest order: %v", relay.ErrExtractionFailed, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toDomain(), nil
}

// CustomerCode returns the code of the customer, or "" if there is no such user
func (s *GormOrderSource) CustomerCode(ctx context.Context, customerID string) (string, error) {
	code, err := s.lookupCode(ctx, s.customerCodeSQL, customerID)
	if err != nil {
		return "", fmt.Errorf("%w: customer %s: %v", relay.ErrExtractionFailed, customerID, err)
	}
	return code, nil
}

// OrderItems returns all lines of the order
func (s *GormOrderSource) OrderItems(ctx context.Context, orderID string) ([]relay.OrderItem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []orderItemRow
	if err := s.db.WithContext(ctx).Raw(s.orderItemsSQL, orderID).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: items of order %s: %v", relay.ErrExtractionFailed, orderID, err)
	}

	items := make([]relay.OrderItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, relay.OrderItem{
			ProductID: r.ProductID.String,
			Quantity:  r.Quantity.String,
			UnitPrice: r.Price.String,
			OrderID:   r.OrderID.String,
		})
	}
	return items, nil
}

// ProductCode returns the code of the product, or "" if there is no such product
func (s *GormOrderSource) ProductCode(ctx context.Context, productID string) (string, error) {
	code, err := s.lookupCode(ctx, s.productCodeSQL, productID)
	if err != nil {
		return "", fmt.Errorf("%w: product %s: %v", relay.ErrExtractionFailed, productID, err)
	}
	return code, nil
}

func (s *GormOrderSource) lookupCode(ctx context.Context, query, id string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []codeRow
	if err := s.db.WithContext(ctx).Raw(query, id).Scan(&rows).Error; err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Code.String, nil
}
