package erp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/example/erp/tools/glcheck/internal/client"
	"github.com/example/erp/tools/glcheck/internal/ledger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// API paths, relative to the configured base URL.
const (
	PathInventoryBalances = "/inventory/balances"
	PathStockMovements    = "/stock-movements"
	PathJournalEntries    = "/journal-entries"
	PathAccountBalance    = "/accounts/{code}/balance"
)

// Client calls the inventory and GL endpoints.
type Client struct {
	http   *client.Client
	logger *zap.Logger
}

// NewClient wraps an HTTP client.
func NewClient(httpClient *client.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: httpClient, logger: logger}
}

type balancesResponse struct {
	Data []struct {
		ItemCode string          `json:"itemCode"`
		Location string          `json:"location"`
		Quantity decimal.Decimal `json:"quantity"`
	} `json:"data"`
}

// InventoryBalance returns the balance of itemCode at location.
// An empty result is a zero balance, not an error.
func (c *Client) InventoryBalance(ctx context.Context, itemCode, location string) (InventoryBalance, error) {
	var resp balancesResponse
	err := c.http.DoJSON(ctx, client.Request{
		Method: http.MethodGet,
		Path:   PathInventoryBalances,
		QueryParams: map[string]string{
			"itemCode": itemCode,
			"location": location,
		},
	}, &resp)
	if err != nil {
		return InventoryBalance{}, fmt.Errorf("fetching inventory balance: %w", err)
	}

	balance := InventoryBalance{ItemCode: itemCode, Location: location, Quantity: decimal.Zero}
	if len(resp.Data) == 0 {
		c.logger.Debug("no inventory balance record, using zero",
			zap.String("item_code", itemCode),
			zap.String("location", location))
		return balance, nil
	}

	balance.Quantity = resp.Data[0].Quantity
	balance.Found = true
	return balance, nil
}

type movementResponse struct {
	Data Movement `json:"data"`
}

// CreateStockMovement submits a stock movement and returns the created record.
func (c *Client) CreateStockMovement(ctx context.Context, req StockMovementRequest) (Movement, error) {
	var resp movementResponse
	err := c.http.DoJSON(ctx, client.Request{
		Method: http.MethodPost,
		Path:   PathStockMovements,
		Body:   req,
	}, &resp)
	if err != nil {
		return Movement{}, fmt.Errorf("creating stock movement: %w", err)
	}
	if resp.Data.ID == "" {
		return Movement{}, fmt.Errorf("creating stock movement: response has no movement id")
	}
	return resp.Data, nil
}

type journalLineDTO struct {
	Type        string `json:"type"`
	AccountCode string `json:"accountCode"`
	Account     *struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"account"`
	Amount decimal.Decimal `json:"amount"`
}

type journalEntryDTO struct {
	ID          ID               `json:"id"`
	Date        string           `json:"date"`
	Description string           `json:"description"`
	Lines       []journalLineDTO `json:"lines"`
}

type journalEntriesResponse struct {
	Data []journalEntryDTO `json:"data"`
}

func (d journalEntryDTO) toEntry() ledger.JournalEntry {
	entry := ledger.JournalEntry{
		ID:          d.ID.String(),
		Date:        d.Date,
		Description: d.Description,
		Lines:       make([]ledger.JournalLine, 0, len(d.Lines)),
	}
	for _, l := range d.Lines {
		line := ledger.JournalLine{
			Type:        ledger.LineType(l.Type),
			AccountCode: l.AccountCode,
			Amount:      l.Amount,
		}
		if l.Account != nil {
			line.AccountName = l.Account.Name
			if line.AccountCode == "" {
				line.AccountCode = l.Account.Code
			}
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry
}

// JournalEntries returns the journal entries posted with the given reference.
func (c *Client) JournalEntries(ctx context.Context, reference string) ([]ledger.JournalEntry, error) {
	var resp journalEntriesResponse
	err := c.http.DoJSON(ctx, client.Request{
		Method:      http.MethodGet,
		Path:        PathJournalEntries,
		QueryParams: map[string]string{"reference": reference},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetching journal entries: %w", err)
	}

	entries := make([]ledger.JournalEntry, 0, len(resp.Data))
	for _, d := range resp.Data {
		entries = append(entries, d.toEntry())
	}
	return entries, nil
}

// AccountBalance returns the balance of a GL account.
func (c *Client) AccountBalance(ctx context.Context, code string) (AccountBalance, error) {
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	err := c.http.DoJSON(ctx, client.Request{
		Method:     http.MethodGet,
		Path:       PathAccountBalance,
		PathParams: map[string]string{"code": code},
	}, &resp)
	if err != nil {
		return AccountBalance{}, fmt.Errorf("fetching balance of account %s: %w", code, err)
	}
	return AccountBalance{Code: code, Balance: resp.Balance}, nil
}
