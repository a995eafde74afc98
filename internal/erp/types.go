// Package erp is the typed view of the inventory and general ledger endpoints
// the checker talks to. The service itself is external; only the request and
// response shapes it exposes are modelled here.
package erp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/erp/tools/glcheck/internal/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementTypeIn is the stock movement type that increases on-hand quantity.
const MovementTypeIn = "IN"

// ID is an identifier the API may encode as a JSON string or number.
type ID string

// UnmarshalJSON accepts "42", 42 and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier.
func (id ID) String() string {
	return string(id)
}

// StockMovementRequest is the body of POST /stock-movements.
// It is built once per case and never modified.
type StockMovementRequest struct {
	Type      string
	ItemCode  string
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	Location  string
	Reference string
	Notes     string
}

// TotalValue returns quantity * unit cost.
func (r StockMovementRequest) TotalValue() decimal.Decimal {
	return r.Quantity.Mul(r.UnitCost)
}

// MarshalJSON encodes quantities as JSON numbers.
func (r StockMovementRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string      `json:"type"`
		ItemCode  string      `json:"itemCode"`
		Quantity  json.Number `json:"quantity"`
		UnitCost  json.Number `json:"unitCost"`
		Location  string      `json:"location"`
		Reference string      `json:"reference"`
		Notes     string      `json:"notes,omitempty"`
	}{
		Type:      r.Type,
		ItemCode:  r.ItemCode,
		Quantity:  json.Number(r.Quantity.String()),
		UnitCost:  json.Number(r.UnitCost.String()),
		Location:  r.Location,
		Reference: r.Reference,
		Notes:     r.Notes,
	})
}

// NewStockInRequest builds an IN movement for item with the given reference.
func NewStockInRequest(item config.Item, reference string) StockMovementRequest {
	return StockMovementRequest{
		Type:      MovementTypeIn,
		ItemCode:  item.ItemCode,
		Quantity:  decimal.NewFromInt(item.Quantity),
		UnitCost:  decimal.NewFromFloat(item.UnitCost),
		Location:  item.Location,
		Reference: reference,
		Notes:     item.Notes,
	}
}

// NewReference returns a reference unique to this run: PREFIX-<unix seconds>-<8 hex chars>.
func NewReference(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	prefix = strings.TrimRight(prefix, "-")
	if prefix == "" {
		return fmt.Sprintf("%d-%s", now.Unix(), suffix)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.Unix(), suffix)
}

// InventoryBalance is the on-hand quantity of an item at a location.
// The zero value stands for "no record".
type InventoryBalance struct {
	ItemCode string          `json:"itemCode"`
	Location string          `json:"location"`
	Quantity decimal.Decimal `json:"quantity"`
	Found    bool            `json:"found"`
}

// Movement is the stock movement created by the service.
type Movement struct {
	ID        ID     `json:"id"`
	Reference string `json:"reference,omitempty"`
	Status    string `json:"status,omitempty"`
}

// AccountBalance is the current balance of a GL account.
type AccountBalance struct {
	Code    string          `json:"code"`
	Balance decimal.Decimal `json:"balance"`
}
