// Package testutil provides an in-process fake of the inventory and general
// ledger API for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Default GL accounts posted by the fake on stock-in.
const (
	InventoryAccount       = "1300"
	InventoryAccountName   = "Inventory"
	PayableAccount         = "2100"
	PayableAccountName     = "Accounts Payable"
	JournalReferencePrefix = "STOCK-IN-"
)

// Line is a journal line as the fake serves it.
type Line struct {
	Type        string
	AccountCode string
	AccountName string
	Amount      decimal.Decimal
}

// MovementRecord is a stock movement received by the fake.
type MovementRecord struct {
	ID        int
	Type      string
	ItemCode  string
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	Location  string
	Reference string
	Notes     string
}

// Total returns quantity * unit cost.
func (m MovementRecord) Total() decimal.Decimal {
	return m.Quantity.Mul(m.UnitCost)
}

// LinesFunc builds the journal lines posted for a movement.
type LinesFunc func(m MovementRecord) []Line

// DefaultLines debits inventory and credits accounts payable with the movement total.
func DefaultLines(m MovementRecord) []Line {
	total := m.Total()
	return []Line{
		{Type: "DEBIT", AccountCode: InventoryAccount, AccountName: InventoryAccountName, Amount: total},
		{Type: "CREDIT", AccountCode: PayableAccount, AccountName: PayableAccountName, Amount: total},
	}
}

type balanceKey struct {
	itemCode string
	location string
}

type balanceState struct {
	visible decimal.Decimal
	actual  decimal.Decimal
	lag     int
}

type journalState struct {
	id    int
	date  string
	desc  string
	lines []Line
	lag   int
}

type injectedFailure struct {
	status  int
	message string
}

// FakeERP is a gin server that mimics the stock movement and journal endpoints.
// Movements update balances and post a journal entry referenced STOCK-IN-{id}.
type FakeERP struct {
	mu sync.Mutex

	server *httptest.Server
	nextID int

	balances map[balanceKey]*balanceState
	accounts map[string]decimal.Decimal
	journals map[string]*journalState

	movements []MovementRecord
	calls     map[string]int
	failures  map[string][]injectedFailure

	balanceLag    int
	journalLag    int
	linesFor      map[string]LinesFunc
	skipJournal   map[string]bool
	skipInventory map[string]bool
}

// NewFakeERP starts a fake server that is closed when the test ends.
func NewFakeERP(t *testing.T) *FakeERP {
	t.Helper()

	f := &FakeERP{
		nextID:        1,
		balances:      make(map[balanceKey]*balanceState),
		accounts:      map[string]decimal.Decimal{InventoryAccount: decimal.Zero, PayableAccount: decimal.Zero},
		journals:      make(map[string]*journalState),
		calls:         make(map[string]int),
		failures:      make(map[string][]injectedFailure),
		linesFor:      make(map[string]LinesFunc),
		skipJournal:   make(map[string]bool),
		skipInventory: make(map[string]bool),
	}
	f.server = httptest.NewServer(f.router())
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the API base URL (including the /api prefix).
func (f *FakeERP) URL() string {
	return f.server.URL + "/api"
}

// SetBalance sets the on-hand quantity of an item at a location.
func (f *FakeERP) SetBalance(itemCode, location string, quantity int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := decimal.NewFromInt(quantity)
	f.balances[balanceKey{itemCode, location}] = &balanceState{visible: q, actual: q}
}

// SetAccountBalance sets the balance of a GL account.
func (f *FakeERP) SetAccountBalance(code string, balance decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[code] = balance
}

// SetBalanceLag makes the next n balance reads after a movement return the old quantity.
func (f *FakeERP) SetBalanceLag(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceLag = n
}

// SetJournalLag makes the next n journal lookups after a movement return no entries.
func (f *FakeERP) SetJournalLag(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journalLag = n
}

// SetLines overrides the journal lines posted for itemCode.
func (f *FakeERP) SetLines(itemCode string, fn LinesFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linesFor[itemCode] = fn
}

// SkipJournal stops the fake from posting journal entries for itemCode.
func (f *FakeERP) SkipJournal(itemCode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skipJournal[itemCode] = true
}

// SkipInventoryUpdate stops movements of itemCode from changing its balance.
func (f *FakeERP) SkipInventoryUpdate(itemCode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skipInventory[itemCode] = true
}

// FailNext makes the next request to method+path (relative to /api) fail.
func (f *FakeERP) FailNext(method, path string, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + path
	f.failures[key] = append(f.failures[key], injectedFailure{status: status, message: message})
}

// Movements returns the movements received so far.
func (f *FakeERP) Movements() []MovementRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]MovementRecord, len(f.movements))
	copy(out, f.movements)
	return out
}

// Calls returns how many requests reached method+path (relative to /api).
func (f *FakeERP) Calls(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+path]
}

// Balance returns the actual quantity of an item at a location.
func (f *FakeERP) Balance(itemCode, location string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.balances[balanceKey{itemCode, location}]; ok {
		return st.actual
	}
	return decimal.Zero
}

func (f *FakeERP) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api", f.track())
	api.GET("/inventory/balances", f.getBalances)
	api.POST("/stock-movements", f.createMovement)
	api.GET("/journal-entries", f.getJournalEntries)
	api.GET("/accounts/:code/balance", f.getAccountBalance)
	return r
}

// track counts calls and serves injected failures.
func (f *FakeERP) track() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Request.Method + " " + strings.TrimPrefix(c.Request.URL.Path, "/api")

		f.mu.Lock()
		f.calls[key]++
		var failure *injectedFailure
		if queue := f.failures[key]; len(queue) > 0 {
			failure = &queue[0]
			f.failures[key] = queue[1:]
		}
		f.mu.Unlock()

		if failure != nil {
			c.AbortWithStatusJSON(failure.status, gin.H{"error": failure.message})
			return
		}
		c.Next()
	}
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func (f *FakeERP) getBalances(c *gin.Context) {
	key := balanceKey{c.Query("itemCode"), c.Query("location")}

	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.balances[key]
	if !ok {
		c.JSON(http.StatusOK, gin.H{"data": []gin.H{}})
		return
	}

	quantity := st.actual
	if st.lag > 0 {
		st.lag--
		quantity = st.visible
	} else {
		st.visible = st.actual
	}

	c.JSON(http.StatusOK, gin.H{"data": []gin.H{{
		"itemCode": key.itemCode,
		"location": key.location,
		"quantity": number(quantity),
	}}})
}

type movementBody struct {
	Type      string          `json:"type" binding:"required"`
	ItemCode  string          `json:"itemCode" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unitCost"`
	Location  string          `json:"location" binding:"required"`
	Reference string          `json:"reference" binding:"required"`
	Notes     string          `json:"notes"`
}

func (f *FakeERP) createMovement(c *gin.Context) {
	var body movementBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}
	if !body.Quantity.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"message": "quantity must be positive"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	m := MovementRecord{
		ID:        f.nextID,
		Type:      body.Type,
		ItemCode:  body.ItemCode,
		Quantity:  body.Quantity,
		UnitCost:  body.UnitCost,
		Location:  body.Location,
		Reference: body.Reference,
		Notes:     body.Notes,
	}
	f.nextID++
	f.movements = append(f.movements, m)

	if !f.skipInventory[m.ItemCode] {
		key := balanceKey{m.ItemCode, m.Location}
		st, ok := f.balances[key]
		if !ok {
			st = &balanceState{visible: decimal.Zero, actual: decimal.Zero}
			f.balances[key] = st
		}
		st.visible = st.actual
		st.actual = st.actual.Add(m.Quantity)
		st.lag = f.balanceLag
	}

	if !f.skipJournal[m.ItemCode] {
		linesFn := DefaultLines
		if fn, ok := f.linesFor[m.ItemCode]; ok {
			linesFn = fn
		}
		lines := linesFn(m)
		f.journals[JournalReferencePrefix+strconv.Itoa(m.ID)] = &journalState{
			id:    1000 + m.ID,
			date:  "2024-01-15",
			desc:  "Stock in " + m.ItemCode + " (" + m.Reference + ")",
			lines: lines,
			lag:   f.journalLag,
		}
		// Both default accounts carry their normal balance, so each line increases it.
		for _, l := range lines {
			f.accounts[l.AccountCode] = f.accounts[l.AccountCode].Add(l.Amount)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"id":        m.ID,
		"reference": m.Reference,
		"status":    "COMPLETED",
	}})
}

func (f *FakeERP) getJournalEntries(c *gin.Context) {
	reference := c.Query("reference")

	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.journals[reference]
	if !ok {
		c.JSON(http.StatusOK, gin.H{"data": []gin.H{}})
		return
	}
	if st.lag > 0 {
		st.lag--
		c.JSON(http.StatusOK, gin.H{"data": []gin.H{}})
		return
	}

	lines := make([]gin.H, 0, len(st.lines))
	for _, l := range st.lines {
		line := gin.H{
			"type":        l.Type,
			"accountCode": l.AccountCode,
			"amount":      number(l.Amount),
		}
		if l.AccountName != "" {
			line["account"] = gin.H{"code": l.AccountCode, "name": l.AccountName}
		}
		lines = append(lines, line)
	}

	c.JSON(http.StatusOK, gin.H{"data": []gin.H{{
		"id":          strconv.Itoa(st.id),
		"date":        st.date,
		"description": st.desc,
		"reference":   reference,
		"lines":       lines,
	}}})
}

func (f *FakeERP) getAccountBalance(c *gin.Context) {
	code := c.Param("code")

	f.mu.Lock()
	defer f.mu.Unlock()

	balance, ok := f.accounts[code]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "account " + code + " not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": number(balance)})
}
