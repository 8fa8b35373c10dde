package subscription

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Catalog is the read-only set of plans customers can subscribe to.
type Catalog struct {
	plans map[string]Plan
}

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

func NewCatalog(plans []Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan without id")
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.ID)
		}
		if p.Amount < 0 {
			return nil, fmt.Errorf("plan %q: amount must not be negative", p.ID)
		}
		if p.Interval == "" {
			p.Interval = IntervalMonth
		}
		if !p.Interval.Valid() {
			return nil, fmt.Errorf("plan %q: invalid interval %q", p.ID, p.Interval)
		}
		c.plans[p.ID] = p
	}
	return c, nil
}

// ParseCatalog reads a YAML document with a top-level plans list.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	return NewCatalog(f.Plans)
}

// LoadCatalog reads the catalog at path, falling back to DefaultPlans when
// the file does not exist.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewCatalog(DefaultPlans())
	}
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return ParseCatalog(data)
}

func DefaultPlans() []Plan {
	return []Plan{
		{
			ID:       "hair-loss-monthly",
			Name:     "Hair Loss Treatment",
			Amount:   29.00,
			Currency: "USD",
			Interval: IntervalMonth,
			IncludedProducts: []Product{
				{ID: "finasteride-1mg", Name: "Finasteride 1mg", RequiresPrescription: true},
				{ID: "biotin-shampoo", Name: "Biotin Shampoo"},
			},
		},
		{
			ID:       "hair-loss-quarterly",
			Name:     "Hair Loss Treatment (Quarterly)",
			Amount:   79.00,
			Currency: "USD",
			Interval: IntervalQuarter,
			IncludedProducts: []Product{
				{ID: "finasteride-1mg", Name: "Finasteride 1mg", RequiresPrescription: true},
				{ID: "biotin-shampoo", Name: "Biotin Shampoo"},
			},
		},
		{
			ID:       "wellness-monthly",
			Name:     "Daily Wellness",
			Amount:   19.00,
			Currency: "USD",
			Interval: IntervalMonth,
			IncludedProducts: []Product{
				{ID: "multivitamin", Name: "Multivitamin"},
			},
		},
	}
}

func (c *Catalog) Get(id string) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// List returns the plans ordered by id.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
