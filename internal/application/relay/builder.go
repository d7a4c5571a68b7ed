package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/erp/mikrosync/internal/domain/mikro"
	"github.com/erp/mikrosync/internal/domain/relay"
)

const (
	seriesPrefix       = "ARTEK"
	descriptionPrefix  = "Sipariş"
	defaultWarehouseNo = 1
)

// LoginBuilder assembles APILogin payloads.
type LoginBuilder struct {
	creds     mikro.Credentials
	validator *PayloadValidator
}

// NewLoginBuilder creates a login builder for the given account.
func NewLoginBuilder(creds mikro.Credentials, validator *PayloadValidator) *LoginBuilder {
	return &LoginBuilder{creds: creds, validator: validator}
}

// Build returns the login payload for today and the already derived password.
func (b *LoginBuilder) Build(today time.Time, password string) (*mikro.LoginPayload, error) {
	p := &mikro.LoginPayload{
		APIKey:      b.creds.APIKey,
		CompanyCode: b.creds.CompanyCode,
		Year:        mikro.WorkingYear(today),
		UserCode:    b.creds.UserCode,
		Password:    password,
	}
	if err := b.validator.Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// OrderSaveBuilder assembles SiparisKaydetV2 payloads.
// It owns the series counter; every document it produces takes the next value.
type OrderSaveBuilder struct {
	creds     mikro.Credentials
	validator *PayloadValidator

	mu  sync.Mutex
	seq int
}

// NewOrderSaveBuilder creates an order-save builder with the counter at zero.
func NewOrderSaveBuilder(creds mikro.Credentials, validator *PayloadValidator) *OrderSaveBuilder {
	return &OrderSaveBuilder{creds: creds, validator: validator}
}

// Sequence returns the value the next document will use.
func (b *OrderSaveBuilder) Sequence() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Build creates a payload with a single document for the batch and validates it.
// An empty batch fails validation because the document has no lines.
func (b *OrderSaveBuilder) Build(items []relay.EnrichedOrderItem, today time.Time, password string) (*mikro.OrderSavePayload, error) {
	p := &mikro.OrderSavePayload{
		Mikro: mikro.OrderSaveBody{
			CompanyCode: b.creds.CompanyCode,
			Year:        mikro.WorkingYear(today),
			UserCode:    b.creds.UserCode,
			Password:    password,
			APIKey:      b.creds.APIKey,
			Documents:   []mikro.Document{b.document(items)},
		},
	}
	if err := b.validator.Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddDocument returns a copy of payload with one more document for moreItems.
// It exists for callers that submit several batches in one order-save call;
// the cycle service sends a single batch and uses Build only.
// The payload is returned unchanged when moreItems is empty.
func (b *OrderSaveBuilder) AddDocument(payload *mikro.OrderSavePayload, moreItems []relay.EnrichedOrderItem) (*mikro.OrderSavePayload, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: no payload to extend", relay.ErrValidationFailed)
	}
	if len(moreItems) == 0 {
		return payload, nil
	}

	out := *payload
	docs := make([]mikro.Document, 0, len(payload.Mikro.Documents)+1)
	docs = append(docs, payload.Mikro.Documents...)
	out.Mikro.Documents = append(docs, b.document(moreItems))

	if err := b.validator.Validate(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *OrderSaveBuilder) document(items []relay.EnrichedOrderItem) mikro.Document {
	b.mu.Lock()
	series := fmt.Sprintf("%s%d", seriesPrefix, b.seq)
	b.seq++
	b.mu.Unlock()

	orderCode := ""
	if len(items) > 0 {
		orderCode = items[0].OrderCode
	}

	var lines []mikro.LineRecord
	for _, it := range items {
		lines = append(lines, lineRecord(it, series))
	}

	return mikro.Document{
		Descriptions: []mikro.Description{{Text: DescriptionText(orderCode)}},
		Lines:        lines,
	}
}

func lineRecord(it relay.EnrichedOrderItem, series string) mikro.LineRecord {
	return mikro.LineRecord{
		Date:           it.OrderDate,
		Series:         series,
		DocumentSeries: it.OrderCode,
		CustomerCode:   it.CustomerCode,
		ProductCode:    it.ProductCode,
		// Unit prices keep the source scale; only the total is rounded
		UnitPrice:      json.Number(it.UnitPrice.String()),
		Quantity:       it.Quantity,
		Amount:         json.Number(it.TotalPrice.StringFixed(2)),
		WarehouseNo:    defaultWarehouseNo,
		UserTable:      []mikro.UserTableEntry{{Text: ""}},
	}
}

// DescriptionText is the document description for a batch order code.
func DescriptionText(orderCode string) string {
	if orderCode == "" {
		return descriptionPrefix
	}
	return descriptionPrefix + ": " + orderCode
}
