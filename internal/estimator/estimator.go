// Package estimator derives gross weight, net weight and package count for a
// declaration item from its product category and quantity.
//
// Net weight comes from a per-unit table keyed by category (normally the
// 4-digit HS heading). Gross weight is net weight times a packaging factor.
// All weights are rounded to grams and never fall below one gram.
package estimator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// WeightPlaces is the number of decimals kept on estimated weights.
const WeightPlaces = 3

var minWeight = decimal.New(1, -WeightPlaces)

// Category is the per-unit data for one product category.
type Category struct {
	NetPerUnit      float64 `yaml:"net_per_unit" json:"net_per_unit" validate:"gt=0"`
	UnitsPerPackage int     `yaml:"units_per_package,omitempty" json:"units_per_package,omitempty" validate:"gte=0"`
}

// Table configures an Estimator. Zero values fall back to DefaultTable.
type Table struct {
	PackagingFactor   float64             `yaml:"packaging_factor" json:"packaging_factor" validate:"omitempty,gte=1"`
	DefaultNetPerUnit float64             `yaml:"default_net_per_unit" json:"default_net_per_unit" validate:"omitempty,gt=0"`
	Categories        map[string]Category `yaml:"categories" json:"categories" validate:"dive"`
}

// DefaultTable returns the per-unit net weights (kg) used for Saint Lucia
// souvenir and apparel exports.
func DefaultTable() Table {
	return Table{
		PackagingFactor:   1.2,
		DefaultNetPerUnit: 0.25,
		Categories: map[string]Category{
			"6205": {NetPerUnit: 0.25}, // shirts
			"6206": {NetPerUnit: 0.15}, // blouses
			"6203": {NetPerUnit: 0.45}, // trousers, shorts
			"6204": {NetPerUnit: 0.35}, // dresses
			"6211": {NetPerUnit: 0.25}, // swimwear
			"6208": {NetPerUnit: 0.08},
			"6504": {NetPerUnit: 0.15}, // hats
			"4202": {NetPerUnit: 0.45}, // bags
			"6402": {NetPerUnit: 0.5},
			"6405": {NetPerUnit: 0.4},
			"7117": {NetPerUnit: 0.03}, // imitation jewellery
		},
	}
}

// Estimate is the derived weight and package data of one item.
type Estimate struct {
	Gross    decimal.Decimal
	Net      decimal.Decimal
	Packages int
}

type category struct {
	netPerUnit      decimal.Decimal
	unitsPerPackage int64
}

// Estimator is immutable after New and safe for concurrent use.
type Estimator struct {
	factor     decimal.Decimal
	defaultNet decimal.Decimal
	categories map[string]category
	keys       []string
}

// New builds an Estimator from t, filling unset values from DefaultTable.
// A packaging factor below 1 is rejected since it would make gross weight
// smaller than net weight.
func New(t Table) (*Estimator, error) {
	def := DefaultTable()
	if t.PackagingFactor == 0 {
		t.PackagingFactor = def.PackagingFactor
	}
	if t.DefaultNetPerUnit == 0 {
		t.DefaultNetPerUnit = def.DefaultNetPerUnit
	}
	if t.Categories == nil {
		t.Categories = def.Categories
	}

	if t.PackagingFactor < 1 {
		return nil, fmt.Errorf("packaging factor must be at least 1, got %v", t.PackagingFactor)
	}
	if t.DefaultNetPerUnit < 0 {
		return nil, fmt.Errorf("default net weight per unit must be positive, got %v", t.DefaultNetPerUnit)
	}

	e := &Estimator{
		factor:     decimal.NewFromFloat(t.PackagingFactor),
		defaultNet: decimal.NewFromFloat(t.DefaultNetPerUnit),
		categories: make(map[string]category, len(t.Categories)),
	}
	for key, c := range t.Categories {
		if c.NetPerUnit <= 0 {
			return nil, fmt.Errorf("category %s: net weight per unit must be positive, got %v", key, c.NetPerUnit)
		}
		if c.UnitsPerPackage < 0 {
			return nil, fmt.Errorf("category %s: units per package must not be negative", key)
		}
		upp := int64(c.UnitsPerPackage)
		if upp == 0 {
			upp = 1
		}
		e.categories[key] = category{netPerUnit: decimal.NewFromFloat(c.NetPerUnit), unitsPerPackage: upp}
		e.keys = append(e.keys, key)
	}
	sort.Strings(e.keys)
	return e, nil
}

// Default returns an Estimator over DefaultTable.
func Default() *Estimator {
	e, err := New(DefaultTable())
	if err != nil {
		panic(err)
	}
	return e
}

// Estimate computes weights and packages for quantity units of category.
// A positive netHint is taken as the total net weight of the line and
// replaces the table lookup.
func (e *Estimator) Estimate(cat string, quantity, netHint decimal.Decimal) (Estimate, error) {
	if !quantity.IsPositive() {
		return Estimate{}, fmt.Errorf("quantity must be positive, got %s", quantity)
	}

	c, ok := e.lookup(cat)
	if !ok {
		c = category{netPerUnit: e.defaultNet, unitsPerPackage: 1}
	}

	net := quantity.Mul(c.netPerUnit)
	if netHint.IsPositive() {
		net = netHint
	}
	net = clampWeight(net.Round(WeightPlaces))

	gross := clampWeight(net.Mul(e.factor).Round(WeightPlaces))
	if gross.LessThan(net) {
		gross = net
	}

	packages := quantity.Div(decimal.NewFromInt(c.unitsPerPackage)).Ceil().IntPart()
	if packages < 1 {
		packages = 1
	}

	return Estimate{Gross: gross, Net: net, Packages: int(packages)}, nil
}

// lookup tries the category as given, then its 4-digit heading, then the
// first configured category in the same 2-digit chapter.
func (e *Estimator) lookup(cat string) (category, bool) {
	if c, ok := e.categories[cat]; ok {
		return c, true
	}
	if len(cat) > 4 {
		if c, ok := e.categories[cat[:4]]; ok {
			return c, true
		}
	}
	if len(cat) >= 2 {
		chapter := cat[:2]
		for _, k := range e.keys {
			if len(k) >= 2 && k[:2] == chapter {
				return e.categories[k], true
			}
		}
	}
	return category{}, false
}

func clampWeight(w decimal.Decimal) decimal.Decimal {
	if w.LessThan(minWeight) {
		return minWeight
	}
	return w
}
