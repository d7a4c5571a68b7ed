package relay

import "context"

// OrderSource reads order snapshots from the shop database.
// Every method wraps store failures in ErrExtractionFailed.
type OrderSource interface {
	// LatestOrder returns the most recently created order, or nil when the table is empty
	LatestOrder(ctx context.Context) (*Order, error)

	// CustomerCode returns the external code of a customer, or "" if not found
	CustomerCode(ctx context.Context, customerID string) (string, error)

	// OrderItems returns all lines of an order
	OrderItems(ctx context.Context, orderID string) ([]OrderItem, error)

	// ProductCode returns the external code of a product, or "" if not found
	ProductCode(ctx context.Context, productID string) (string, error)
}

// WatermarkStore persists the code of the last forwarded order.
type WatermarkStore interface {
	// Read returns the stored code, or "" when nothing has been recorded yet
	Read(ctx context.Context) (string, error)

	// Write atomically replaces the stored code
	Write(ctx context.Context, orderCode string) error
}

// Endpoint names a Mikro API operation.
type Endpoint string

const (
	EndpointLogin     Endpoint = "login"
	EndpointOrderSave Endpoint = "order_save"
)

// String returns the string representation of Endpoint
func (e Endpoint) String() string {
	return string(e)
}

// SubmitResult describes one call to the ERP.
type SubmitResult struct {
	Endpoint   Endpoint
	StatusCode int
	Body       string
	Accepted   bool
}

// Submitter posts payloads to the ERP.
// Rejections and transport failures are reported through SubmitResult.Accepted, never as errors.
type Submitter interface {
	Submit(ctx context.Context, endpoint Endpoint, payload any) SubmitResult
}
