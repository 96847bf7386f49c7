// Package match resolves claim line items against the preloaded drug and
// service tariff catalogs and annotates claims with the result. Matching is
// a pure in-memory pass; the database is never consulted here.
package match

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/medlot/claimload/internal/model"
	"github.com/medlot/claimload/internal/normalize"
)

// Catalog holds the reference lookups keyed by normalized description.
// Normalization is trim + lowercase + whitespace collapse, the same on both
// the catalog side and the claim side, so lookups are exact after cleanup.
type Catalog struct {
	drugs     map[string]string
	services  map[string]string
	providers map[string]model.ProviderEntry
}

// LoadCatalog reads the catalog files. Drug and service paths are required;
// the provider registry path may be empty, which disables provider
// annotation. Any unreadable or malformed file is process-fatal for the
// matching run.
func LoadCatalog(drugPath, servicePath, providerPath string) (*Catalog, error) {
	cat := &Catalog{
		drugs:     make(map[string]string),
		services:  make(map[string]string),
		providers: make(map[string]model.ProviderEntry),
	}

	var drugRows []model.DrugTariffEntry
	if err := readJSONFile(drugPath, &drugRows); err != nil {
		return nil, fmt.Errorf("drug catalog: %w", err)
	}
	for _, row := range drugRows {
		if row.MedicineCode == "" {
			continue
		}
		if k := normalize.Key(row.ProviderDrugDescription); k != "" {
			cat.drugs[k] = row.MedicineCode
		}
		if k := normalize.Key(row.TradeName); k != "" {
			if _, taken := cat.drugs[k]; !taken {
				cat.drugs[k] = row.MedicineCode
			}
		}
	}

	var serviceRows []model.ServiceTariffEntry
	if err := readJSONFile(servicePath, &serviceRows); err != nil {
		return nil, fmt.Errorf("service catalog: %w", err)
	}
	for _, row := range serviceRows {
		code := row.Code()
		if code == "" {
			continue
		}
		if k := normalize.Key(row.ProviderDesc); k != "" {
			cat.services[k] = code
		}
	}

	if providerPath != "" {
		var providerRows []model.ProviderEntry
		if err := readJSONFile(providerPath, &providerRows); err != nil {
			return nil, fmt.Errorf("provider registry: %w", err)
		}
		for _, row := range providerRows {
			if k := normalize.Key(row.FacilityName); k != "" {
				cat.providers[k] = row
			}
		}
	}

	return cat, nil
}

// DrugCode looks up a drug description. The second return reports a hit.
func (c *Catalog) DrugCode(item string) (string, bool) {
	code, ok := c.drugs[normalize.Key(item)]
	return code, ok
}

// ServiceCode looks up a service description.
func (c *Catalog) ServiceCode(item string) (string, bool) {
	code, ok := c.services[normalize.Key(item)]
	return code, ok
}

// Provider looks up a facility by name.
func (c *Catalog) Provider(name string) (model.ProviderEntry, bool) {
	p, ok := c.providers[normalize.Key(name)]
	return p, ok
}

// Sizes reports entry counts for startup logging.
func (c *Catalog) Sizes() (drugs, services, providers int) {
	return len(c.drugs), len(c.services), len(c.providers)
}

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
