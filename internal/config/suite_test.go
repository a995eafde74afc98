package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSuite(t *testing.T) {
	suite := DefaultSuite()

	require.NoError(t, suite.Validate())
	require.Len(t, suite.Items, 2)
	assert.Equal(t, "LAPTOP-001", suite.Items[0].ItemCode)
	assert.Equal(t, int64(5), suite.Items[0].Quantity)
	assert.Equal(t, 1500.00, suite.Items[0].UnitCost)
	assert.Equal(t, "PAPER-A4", suite.Items[1].ItemCode)
	assert.Equal(t, int64(100), suite.Items[1].Quantity)
}

func TestLoadSuiteFromBytes(t *testing.T) {
	t.Run("parses items and applies defaults", func(t *testing.T) {
		suite, err := LoadSuiteFromBytes([]byte(`
name: nightly
items:
  - itemCode: MONITOR-27
    quantity: 3
    unitCost: 249.99
    location: WAREHOUSE-B
    notes: monitors
`))
		require.NoError(t, err)

		assert.Equal(t, "nightly", suite.Name)
		require.Len(t, suite.Items, 1)
		item := suite.Items[0]
		assert.Equal(t, "MONITOR-27", item.ItemCode)
		assert.Equal(t, 249.99, item.UnitCost)
		assert.Equal(t, "TEST-MONITOR", item.ReferencePrefix)
	})

	t.Run("reports field errors by YAML name", func(t *testing.T) {
		_, err := LoadSuiteFromBytes([]byte(`
items:
  - itemCode: ""
    quantity: 0
    unitCost: -1
    location: WAREHOUSE-A
`))
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "items[0].itemCode: is required")
		assert.Contains(t, err.Error(), "items[0].quantity: must be greater than 0")
		assert.Contains(t, err.Error(), "items[0].unitCost: must be greater than or equal to 0")
	})

	t.Run("rejects non-finite unit costs", func(t *testing.T) {
		for _, cost := range []string{".inf", "-.inf", ".nan"} {
			_, err := LoadSuiteFromBytes([]byte(`
items:
  - itemCode: X-1
    quantity: 1
    unitCost: ` + cost + `
    location: W
`))
			require.ErrorIs(t, err, ErrInvalidConfig, cost)
			assert.Contains(t, err.Error(), "items[0].unitCost: must be a finite number", cost)
		}
	})

	t.Run("requires at least one item", func(t *testing.T) {
		_, err := LoadSuiteFromBytes([]byte("name: empty\n"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("rejects malformed YAML", func(t *testing.T) {
		_, err := LoadSuiteFromBytes([]byte("items: [\n"))
		assert.Error(t, err)
	})
}

func TestLoadSuite(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSuite("nope.yaml")
		assert.ErrorIs(t, err, ErrConfigNotFound)
	})

	t.Run("reads a file", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "suite.yaml", "items:\n  - {itemCode: A-1, quantity: 1, unitCost: 1, location: L}\n")

		suite, err := LoadSuite(path)
		require.NoError(t, err)
		assert.Equal(t, "stock-in-gl", suite.Name)
		assert.Equal(t, "TEST-A", suite.Items[0].ReferencePrefix)
	})
}
