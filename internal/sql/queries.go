// Package sql embeds the schema migrations and the statements used by the
// migration pipeline. Every statement is parameterized; no claim data is
// ever interpolated into SQL text.
package sql

import (
	"embed"
	_ "embed"
)

// Migrations holds the schema DDL, applied in filename order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/resolve_member.sql
var ResolveMember string

//go:embed queries/resolve_provider.sql
var ResolveProvider string

//go:embed queries/provider_network.sql
var ProviderNetwork string

//go:embed queries/max_claim_number.sql
var MaxClaimNumber string

//go:embed queries/max_lot_number.sql
var MaxLotNumber string

//go:embed queries/find_migrated_lot.sql
var FindMigratedLot string

//go:embed queries/insert_lot.sql
var InsertLot string

//go:embed queries/insert_assign_lot.sql
var InsertAssignLot string

//go:embed queries/increment_lot_claims.sql
var IncrementLotClaims string

//go:embed queries/insert_claim.sql
var InsertClaim string

//go:embed queries/lookup_service_tariff.sql
var LookupServiceTariff string

//go:embed queries/provider_medicine_tariff.sql
var ProviderMedicineTariff string

//go:embed queries/lookup_drug.sql
var LookupDrug string

//go:embed queries/lookup_drug_global.sql
var LookupDrugGlobal string

//go:embed queries/insert_claim_detail.sql
var InsertClaimDetail string

//go:embed queries/insert_claim_drug.sql
var InsertClaimDrug string

//go:embed queries/lookup_diagnosis_exact.sql
var LookupDiagnosisExact string

//go:embed queries/lookup_diagnosis_soundex.sql
var LookupDiagnosisSoundex string

//go:embed queries/insert_claim_code.sql
var InsertClaimCode string

//go:embed queries/claim_code_rows.sql
var ClaimCodeRows string

//go:embed queries/delete_duplicate_codes.sql
var DeleteDuplicateCodes string

//go:embed queries/service_totals.sql
var ServiceTotals string

//go:embed queries/drug_totals.sql
var DrugTotals string

//go:embed queries/update_claim_totals.sql
var UpdateClaimTotals string

//go:embed queries/reconcile_lot_type.sql
var ReconcileLotType string

//go:embed queries/reconcile_lot_amount.sql
var ReconcileLotAmount string

//go:embed queries/migrated_lot_numbers.sql
var MigratedLotNumbers string
