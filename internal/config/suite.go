package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Item is one stock-in case of a suite.
type Item struct {
	// ItemCode identifies the inventory item (e.g. "LAPTOP-001").
	ItemCode string `yaml:"itemCode" json:"itemCode" validate:"required"`

	// Quantity is the number of whole units moved in.
	Quantity int64 `yaml:"quantity" json:"quantity" validate:"gt=0"`

	// UnitCost is the cost per unit in currency units.
	UnitCost float64 `yaml:"unitCost" json:"unitCost" validate:"gte=0"`

	// Location is the warehouse/location code.
	Location string `yaml:"location" json:"location" validate:"required"`

	// ReferencePrefix starts the movement reference; a unique suffix is added per run.
	// Default: "TEST-" + first segment of ItemCode
	ReferencePrefix string `yaml:"referencePrefix,omitempty" json:"referencePrefix,omitempty"`

	// Notes is free text attached to the movement.
	Notes string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// Suite is a named list of items checked sequentially.
type Suite struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Items       []Item `yaml:"items" json:"items" validate:"required,min=1,dive"`
}

// DefaultSuite returns the built-in stock-in suite.
func DefaultSuite() *Suite {
	return &Suite{
		Name:        "stock-in-gl",
		Description: "Stock-in with general ledger integration",
		Items: []Item{
			{
				ItemCode:        "LAPTOP-001",
				Quantity:        5,
				UnitCost:        1500.00,
				Location:        "WAREHOUSE-A",
				ReferencePrefix: "TEST-LAPTOP",
				Notes:           "Test laptop stock-in with GL integration",
			},
			{
				ItemCode:        "PAPER-A4",
				Quantity:        100,
				UnitCost:        5.00,
				Location:        "WAREHOUSE-A",
				ReferencePrefix: "TEST-PAPER",
				Notes:           "Test paper stock-in with GL integration",
			},
		},
	}
}

// LoadSuite loads a suite from a YAML file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading suite file: %w", err)
	}
	return LoadSuiteFromBytes(data)
}

// LoadSuiteFromBytes parses and validates a YAML suite.
func LoadSuiteFromBytes(data []byte) (*Suite, error) {
	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parsing suite: %w", err)
	}

	if err := suite.Validate(); err != nil {
		return nil, err
	}

	suite.ApplyDefaults()
	return &suite, nil
}

// Validate validates the suite and its items.
func (s *Suite) Validate() error {
	var msgs []string
	if err := suiteValidator.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s: %s", trimNamespace(fe.Namespace()), validationMessage(fe)))
		}
	}

	// gte=0 lets +Inf through and decimal cannot represent it
	for i, item := range s.Items {
		if math.IsInf(item.UnitCost, 0) || math.IsNaN(item.UnitCost) {
			msgs = append(msgs, fmt.Sprintf("items[%d].unitCost: must be a finite number", i))
		}
	}

	if len(msgs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
	}
	return nil
}

// ApplyDefaults applies default values to unset fields.
func (s *Suite) ApplyDefaults() {
	if s.Name == "" {
		s.Name = "stock-in-gl"
	}
	for i := range s.Items {
		if s.Items[i].ReferencePrefix == "" {
			s.Items[i].ReferencePrefix = "TEST-" + strings.SplitN(s.Items[i].ItemCode, "-", 2)[0]
		}
	}
}

var suiteValidator = newSuiteValidator()

func newSuiteValidator() *validator.Validate {
	v := validator.New()
	// Report YAML field names so errors point at the suite file
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// trimNamespace drops the root struct name: "Suite.items[0].quantity" -> "items[0].quantity".
func trimNamespace(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + e.Param() + " entries"
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	default:
		return "is invalid (" + e.Tag() + ")"
	}
}
