package receipt

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Order is the header of a kitchen order and its line items.
type Order struct {
	ID             int64           `json:"id"`
	Number         string          `json:"order_number"`
	TableID        *int64          `json:"table_id,omitempty"`
	Notes          string          `json:"notes"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Items          []Item          `json:"items"`
}

// HasTable reports whether the order is served at a table rather than packed.
func (o Order) HasTable() bool {
	return o.TableID != nil
}

// Item is a single ordered line. DineIn and Pack carry the raw breakdown
// blobs as stored; either may be absent.
type Item struct {
	Type     string          `json:"item_type"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	DineIn   json.RawMessage `json:"dinein_breakdown,omitempty"`
	Pack     json.RawMessage `json:"pack_breakdown,omitempty"`
}

// Section is a breakdown blob: a total plus optional named flavor entries.
type Section struct {
	Total   int               `json:"total"`
	Flavors map[string]Flavor `json:"flavors"`
}

// Flavor is one named entry of a section with its modifier counts.
type Flavor struct {
	Total    int            `json:"total"`
	Modifier map[string]int `json:"modifier"`
}

// OrderSource loads orders for rendering.
type OrderSource interface {
	Order(ctx context.Context, orderID int64) (Order, error)
}

// decodeSection parses a breakdown blob. Blobs are accepted either as a JSON
// object or as a JSON string holding the object, which is how they come out
// of a text column. Anything missing or unparseable yields ok == false.
func decodeSection(raw json.RawMessage) (Section, bool) {
	var s Section
	if len(raw) == 0 || string(raw) == "null" {
		return s, false
	}
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil || text == "" {
		return Section{}, false
	}
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return Section{}, false
	}
	return s, true
}
