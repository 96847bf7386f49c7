package model

// DrugTariffEntry is one row of the drug tariff catalog file. Either the
// provider's own description or the trade name keys the lookup.
type DrugTariffEntry struct {
	ProviderDrugDescription string `json:"providerdrugdescription"`
	TradeName               string `json:"trade_name"`
	MedicineCode            string `json:"medicinecode"`
}

// ServiceTariffEntry is one row of the service tariff catalog file. The
// provider code wins over the generic CPT code when both are present.
type ServiceTariffEntry struct {
	ProviderDesc string `json:"provider_desc"`
	ProviderCode string `json:"provider_code"`
	CPT          string `json:"cpt"`
}

// Code returns the canonical code for the entry.
func (e ServiceTariffEntry) Code() string {
	if e.ProviderCode != "" {
		return e.ProviderCode
	}
	return e.CPT
}

// ProviderEntry is one row of the provider registry file.
type ProviderEntry struct {
	ProviderID   int64  `json:"provider_id"`
	FacilityName string `json:"facility_name"`
	ProviderType int    `json:"provider_type"`
}
