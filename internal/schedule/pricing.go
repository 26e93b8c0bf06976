package schedule

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/inkwell-labs/tourbook/internal/domain"
)

var ErrUnknownCategory = errors.New("unknown pricing category")

type pricingFile struct {
	Categories []struct {
		Category        string `yaml:"category"`
		DurationHours   int    `yaml:"duration_hours"`
		PriceCents      int64  `yaml:"price_cents"`
		DepositCents    int64  `yaml:"deposit_cents"`
		ContactRequired bool   `yaml:"contact_required"`
	} `yaml:"categories"`
}

// PriceBook is the immutable category → price lookup table.
type PriceBook struct {
	rules map[string]domain.PricingRule
}

// LoadPriceBook reads pricing rules from a YAML file. A rule either carries a
// fixed price or is marked contact_required; contact-required rules still
// need a duration so availability can be checked before handing the client
// to a human.
func LoadPriceBook(path string) (*PriceBook, error) {
	const op = "schedule.LoadPriceBook"

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var f pricingFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rules := make([]domain.PricingRule, 0, len(f.Categories))
	for _, c := range f.Categories {
		if c.Category == "" {
			return nil, fmt.Errorf("%s: rule with empty category", op)
		}
		if c.DurationHours <= 0 {
			return nil, fmt.Errorf("%s: category %q: duration_hours must be positive", op, c.Category)
		}
		if !c.ContactRequired && c.PriceCents <= 0 {
			return nil, fmt.Errorf("%s: category %q: needs price_cents or contact_required", op, c.Category)
		}
		rules = append(rules, domain.PricingRule{
			Category:        c.Category,
			DurationHours:   c.DurationHours,
			PriceCents:      c.PriceCents,
			DepositCents:    c.DepositCents,
			ContactRequired: c.ContactRequired,
		})
	}

	return NewPriceBook(rules), nil
}

func NewPriceBook(rules []domain.PricingRule) *PriceBook {
	m := make(map[string]domain.PricingRule, len(rules))
	for _, r := range rules {
		m[r.Category] = r
	}
	return &PriceBook{rules: m}
}

// Rule looks up the pricing rule for a category.
func (p *PriceBook) Rule(category string) (domain.PricingRule, error) {
	r, ok := p.rules[category]
	if !ok {
		return domain.PricingRule{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return r, nil
}

// Categories lists all known categories, sorted.
func (p *PriceBook) Categories() []string {
	out := make([]string, 0, len(p.rules))
	for c := range p.rules {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
