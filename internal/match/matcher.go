package match

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/medlot/claimload/internal/model"
	"github.com/medlot/claimload/internal/normalize"
)

// drugItemTypes is the closed set of item-type labels routed to the drug
// catalog. Every other label, including blank cells, routes to the service
// catalog.
var drugItemTypes = map[string]bool{
	"drugs":               true,
	"drug":                true,
	"hypertension":        true,
	"diabetis mellitus":   true,
	"gynaecology general": true,
	"antineoplastic":      true,
	"chronic drugs":       true,
}

// IsDrugType reports whether an item-type cell routes to the drug catalog.
func IsDrugType(itemType string) bool {
	return drugItemTypes[normalize.Key(itemType)]
}

// Matcher annotates claims with catalog codes and accumulates run-level
// statistics. Not safe for concurrent use.
type Matcher struct {
	cat *Catalog
	log zerolog.Logger

	totalDrugs        int
	totalServices     int
	totalProviders    int
	unmatchedDrugs    map[string]bool
	unmatchedServices map[string]bool
	unmatchedProv     map[string]bool
	notFoundDrugs     int
	notFoundServices  int
	notFoundProviders int
}

// NewMatcher returns a Matcher over the given catalog.
func NewMatcher(cat *Catalog, log zerolog.Logger) *Matcher {
	return &Matcher{
		cat:               cat,
		log:               log,
		unmatchedDrugs:    make(map[string]bool),
		unmatchedServices: make(map[string]bool),
		unmatchedProv:     make(map[string]bool),
	}
}

// MatchClaim partitions the claim's line items into drugs and services,
// resolves each against its catalog, and stores the result on the claim.
// Every line item lands in exactly one bucket; items that match nothing get
// the unmatched sentinel instead of being dropped. Returns the claim's
// not-found entries, deduplicated within the claim.
func (m *Matcher) MatchClaim(c *model.ClaimRecord) []model.NotFoundEntry {
	mapped := &model.MappedItems{}
	var notFound []model.NotFoundEntry
	seen := make(map[string]bool)

	record := func(e model.NotFoundEntry) {
		if k := e.Key(); !seen[k] {
			seen[k] = true
			notFound = append(notFound, e)
		}
	}

	for i, item := range c.Item {
		qty, cost := "", ""
		if i < len(c.Quantity) {
			qty = c.Quantity[i]
		}
		if i < len(c.Cost) {
			cost = c.Cost[i]
		}

		if IsDrugType(c.ItemTypeAt(i)) {
			m.totalDrugs++
			if code, ok := m.cat.DrugCode(item); ok {
				mapped.Drugs = append(mapped.Drugs, model.MappedItem{Item: item, Code: code})
			} else {
				mapped.Drugs = append(mapped.Drugs, model.NewUnmatched(item))
				m.notFoundDrugs++
				m.unmatchedDrugs[normalize.Key(item)] = true
				record(model.NotFoundEntry{Type: model.NotFoundDrug, Item: item, Quantity: qty, Cost: cost})
			}
			continue
		}

		m.totalServices++
		if code, ok := m.cat.ServiceCode(item); ok {
			mapped.Services = append(mapped.Services, model.MappedItem{Item: item, Code: code})
		} else {
			mapped.Services = append(mapped.Services, model.NewUnmatched(item))
			m.notFoundServices++
			m.unmatchedServices[normalize.Key(item)] = true
			record(model.NotFoundEntry{Type: model.NotFoundService, Item: item, Quantity: qty, Cost: cost})
		}
	}

	if len(m.cat.providers) > 0 && c.ServiceProvider != "" {
		m.totalProviders++
		if _, ok := m.cat.Provider(c.ServiceProvider); !ok {
			m.notFoundProviders++
			m.unmatchedProv[normalize.Key(c.ServiceProvider)] = true
			record(model.NotFoundEntry{Type: model.NotFoundProvider, Item: c.ServiceProvider})
		}
	}

	c.Mapped = mapped
	return notFound
}

// Summary returns the accumulated statistics across all matched claims.
func (m *Matcher) Summary() model.MatchSummary {
	return model.MatchSummary{
		TotalDrugs:         m.totalDrugs,
		NotFoundDrugs:      m.notFoundDrugs,
		TotalServices:      m.totalServices,
		NotFoundServices:   m.notFoundServices,
		TotalProviders:     m.totalProviders,
		NotFoundProviders:  m.notFoundProviders,
		UnmatchedDrugs:     sortedKeys(m.unmatchedDrugs),
		UnmatchedServices:  sortedKeys(m.unmatchedServices),
		UnmatchedProviders: sortedKeys(m.unmatchedProv),
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
