package subscription

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalog(t *testing.T) {
	doc := []byte(`
plans:
  - id: acne-monthly
    name: Acne Treatment
    amount: 35
    currency: USD
    included_products:
      - id: tretinoin-cream
        name: Tretinoin Cream
        requires_prescription: true
  - id: vitamins-yearly
    name: Vitamins
    amount: 120
    currency: USD
    interval: year
`)
	c, err := ParseCatalog(doc)
	require.NoError(t, err)

	plans := c.List()
	require.Len(t, plans, 2)
	assert.Equal(t, "acne-monthly", plans[0].ID)
	assert.Equal(t, IntervalMonth, plans[0].Interval)
	assert.True(t, plans[0].RequiresPrescription())
	assert.Equal(t, IntervalYear, plans[1].Interval)
	assert.False(t, plans[1].RequiresPrescription())
}

func TestParseCatalog_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing id":      "plans:\n  - name: x\n    amount: 1\n",
		"duplicate":       "plans:\n  - id: a\n  - id: a\n",
		"negative amount": "plans:\n  - id: a\n    amount: -1\n",
		"bad interval":    "plans:\n  - id: a\n    interval: fortnight\n",
		"malformed":       "plans: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog_MissingFileUsesDefaults(t *testing.T) {
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "plans.yaml"))
	require.NoError(t, err)
	assert.Len(t, c.List(), len(DefaultPlans()))

	p, ok := c.Get("hair-loss-monthly")
	require.True(t, ok)
	assert.True(t, p.RequiresPrescription())
}

func TestLoadCatalog_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  - id: only\n    amount: 5\n"), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	_, ok := c.Get("only")
	assert.True(t, ok)
	_, ok = c.Get("hair-loss-monthly")
	assert.False(t, ok)
}
