package migration_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medlot/claimload/internal/db"
	"github.com/medlot/claimload/internal/migration"
	"github.com/medlot/claimload/internal/model"
	"github.com/medlot/claimload/internal/runlog"
)

const (
	testPort     = 15433
	testDB       = "claimtest"
	testUser     = "postgres"
	testPassword = "postgres"
)

var (
	testDSN string
	pg      *embeddedpostgres.EmbeddedPostgres
)

func TestMain(m *testing.M) {
	testDSN = fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable",
		testUser, testPassword, testPort, testDB)

	pg = embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(uint32(testPort)).
			Database(testDB).
			Username(testUser).
			Password(testPassword).
			Version(embeddedpostgres.V16).
			StartTimeout(30 * time.Second),
	)

	if err := pg.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start embedded postgres: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := pg.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to stop embedded postgres: %v\n", err)
	}

	os.Exit(code)
}

// setupDB connects, resets the schema, and applies migrations.
func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDSN)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if _, err := pool.Exec(ctx, "DROP SCHEMA IF EXISTS public CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	if _, err := pool.Exec(ctx, "CREATE SCHEMA public"); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if err := db.ApplyMigrations(ctx, pool, zerolog.Nop()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

func count(t *testing.T, pool *pgxpool.Pool, query string, args ...any) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count query %q: %v", query, err)
	}
	return n
}

// seedMember inserts a member plus one scheme row and returns the ms_id.
func seedMember(t *testing.T, pool *pgxpool.Pool, memberNumber string, planNetwork, policyID int64) int64 {
	t.Helper()
	ctx := context.Background()

	var mmID int64
	err := pool.QueryRow(ctx,
		"INSERT INTO members (mm_member_id, mm_nin_number) VALUES ($1, $1) RETURNING mm_id",
		memberNumber,
	).Scan(&mmID)
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}

	var msID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO members_schemes (ms_member_id, ms_tob_plan_id, ms_plan_network, ms_policy_id)
		 VALUES ($1, 10, $2, $3) RETURNING ms_id`,
		mmID, planNetwork, policyID,
	).Scan(&msID)
	if err != nil {
		t.Fatalf("seed member scheme: %v", err)
	}
	return msID
}

// seedProvider inserts a provider with one active tariff and returns both ids.
func seedProvider(t *testing.T, pool *pgxpool.Pool, name string, networkID int64) (providerID, ptID int64) {
	t.Helper()
	ctx := context.Background()

	err := pool.QueryRow(ctx,
		"INSERT INTO providers (provider_name) VALUES ($1) RETURNING provider_id", name,
	).Scan(&providerID)
	if err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	err = pool.QueryRow(ctx,
		`INSERT INTO provider_tariff (pt_provider_id, pt_networkid, pt_status)
		 VALUES ($1, $2, '1') RETURNING pt_id`,
		providerID, networkID,
	).Scan(&ptID)
	if err != nil {
		t.Fatalf("seed provider tariff: %v", err)
	}
	return providerID, ptID
}

// seedServiceTariff inserts a service_list row and a tariff_master row bound
// to the given provider tariff.
func seedServiceTariff(t *testing.T, pool *pgxpool.Pool, ptID int64, cptCode, description string, netAmt float64, claimType int) {
	t.Helper()
	ctx := context.Background()

	var slID int64
	err := pool.QueryRow(ctx,
		"INSERT INTO service_list (sl_cover_id) VALUES (7) RETURNING sl_id",
	).Scan(&slID)
	if err != nil {
		t.Fatalf("seed service list: %v", err)
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO tariff_master
		   (tm_tariff_id, tm_service_id, tm_cpt_code, tm_description, tm_net_amt, tm_currency, tm_claim_type)
		 VALUES ($1, $2, $3, $4, $5, 'USD', $6)`,
		ptID, slID, cptCode, description, netAmt, claimType,
	)
	if err != nil {
		t.Fatalf("seed tariff master: %v", err)
	}
}

// seedDrug inserts a medicine on the provider's active medicine tariff.
func seedDrug(t *testing.T, pool *pgxpool.Pool, providerID int64, medCode, description, proDesc string) {
	t.Helper()
	ctx := context.Background()

	var pmtID int64
	err := pool.QueryRow(ctx,
		`INSERT INTO pbm_provider_medicine_tariff (pmt_provider_id, pmt_status)
		 VALUES ($1, 1) RETURNING pmt_id`,
		providerID,
	).Scan(&pmtID)
	if err != nil {
		t.Fatalf("seed medicine tariff: %v", err)
	}

	var medID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO pbm_medicine (med_code, description, unitform)
		 VALUES ($1, $2, 'Tablet') RETURNING med_id`,
		medCode, description,
	).Scan(&medID)
	if err != nil {
		t.Fatalf("seed medicine: %v", err)
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO pbm_provider_medicine_discount (md_med_id, md_pmt_id, md_provider_id, md_pro_desc)
		 VALUES ($1, $2, $3, $4)`,
		medID, pmtID, providerID, proDesc,
	)
	if err != nil {
		t.Fatalf("seed medicine discount: %v", err)
	}
}

func seedDiagnosis(t *testing.T, pool *pgxpool.Pool, code, short, long string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO icd_detail_cm (icd_code, icd_short_description, icd_long_description)
		 VALUES ($1, $2, $3)`,
		code, short, long,
	)
	if err != nil {
		t.Fatalf("seed diagnosis: %v", err)
	}
}

// testRecord builds a fully matched two-item claim: one service, one drug.
func testRecord(memberNumber, provider string) model.ClaimRecord {
	return model.ClaimRecord{
		ClaimNumber:        "SRC-001",
		MemberNumber:       memberNumber,
		ServiceProvider:    provider,
		TypeOfVisit:        "OUT-PATIENT",
		DateOfConsultation: "05/01/2024",
		DateAdded:          "05/01/2024",
		Item:               []string{"General Consultation", "Paracetamol 500mg"},
		ItemType:           []string{"", "Drugs"},
		Quantity:           []string{"1", "2"},
		Cost:               []string{"100", "50"},
		Diagnosis:          []string{"Malaria"},
		Claimed:            150,
		Mapped: &model.MappedItems{
			Drugs:    []model.MappedItem{{Item: "Paracetamol 500mg", Code: "MED1"}},
			Services: []model.MappedItem{{Item: "General Consultation", Code: "CPT100"}},
		},
	}
}

// seedRecordRefs seeds everything testRecord resolves against.
func seedRecordRefs(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	seedMember(t, pool, "MBR-001", 4, 900)
	providerID, ptID := seedProvider(t, pool, "City Care Hospital", 4)
	seedServiceTariff(t, pool, ptID, "CPT100", "General Consultation", 80, 1)
	seedDrug(t, pool, providerID, "MED1", "Paracetamol", "Paracetamol 500mg")
	seedDiagnosis(t, pool, "B54", "Malaria", "Unspecified malaria")
}

func TestResolveMemberNewestSchemeWins(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	seedMember(t, pool, "MBR-007", 3, 100)

	// Second scheme row for the same member; the higher ms_id must win.
	var mmID int64
	if err := pool.QueryRow(ctx, "SELECT mm_id FROM members WHERE mm_member_id = 'MBR-007'").Scan(&mmID); err != nil {
		t.Fatalf("member id: %v", err)
	}
	var newestMS int64
	err := pool.QueryRow(ctx,
		`INSERT INTO members_schemes (ms_member_id, ms_tob_plan_id, ms_plan_network, ms_policy_id)
		 VALUES ($1, 20, 8, 200) RETURNING ms_id`, mmID,
	).Scan(&newestMS)
	if err != nil {
		t.Fatalf("second scheme: %v", err)
	}

	m, err := migration.ResolveMember(ctx, pool, "MBR-007")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.MSID != newestMS {
		t.Errorf("MSID = %d, want newest %d", m.MSID, newestMS)
	}
	if m.PlanNetwork != 8 || m.PolicyID != 200 {
		t.Errorf("got network %d policy %d, want 8/200", m.PlanNetwork, m.PolicyID)
	}
}

func TestResolveMemberNotFound(t *testing.T) {
	pool := setupDB(t)

	_, err := migration.ResolveMember(context.Background(), pool, "GHOST")
	var nf *migration.MemberNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want MemberNotFoundError", err)
	}
	if want := "Member not found for memberNumber: GHOST"; err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestResolveProvider(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	providerID, _ := seedProvider(t, pool, "City Care Hospital", 0)

	p, err := migration.ResolveProvider(ctx, pool, "City Care")
	if err != nil {
		t.Fatalf("resolve by name: %v", err)
	}
	if p.ProviderID != providerID {
		t.Errorf("ProviderID = %d, want %d", p.ProviderID, providerID)
	}

	p, err = migration.ResolveProvider(ctx, pool, fmt.Sprint(providerID))
	if err != nil {
		t.Fatalf("resolve by id: %v", err)
	}
	if p.Name != "City Care Hospital" {
		t.Errorf("Name = %q", p.Name)
	}

	_, err = migration.ResolveProvider(ctx, pool, "Nowhere Clinic")
	var nf *migration.ProviderNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want ProviderNotFoundError", err)
	}

	// A blank name must not match by containment.
	_, err = migration.ResolveProvider(ctx, pool, "   ")
	if !errors.As(err, &nf) {
		t.Fatalf("blank name: err = %v, want ProviderNotFoundError", err)
	}
}

func TestResolveNetworkFallbackChain(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	withNet, _ := seedProvider(t, pool, "Networked Hospital", 9)
	zeroNet, _ := seedProvider(t, pool, "Unscoped Hospital", 0)

	net, err := migration.ResolveNetwork(ctx, pool, withNet, 4)
	if err != nil || net != 9 {
		t.Errorf("tariff network: got %d, %v; want 9", net, err)
	}

	net, err = migration.ResolveNetwork(ctx, pool, zeroNet, 4)
	if err != nil || net != 4 {
		t.Errorf("plan fallback: got %d, %v; want 4", net, err)
	}

	net, err = migration.ResolveNetwork(ctx, pool, zeroNet, 0)
	if err != nil || net != 0 {
		t.Errorf("no network: got %d, %v; want 0", net, err)
	}

	// No tariff row at all behaves the same as network 0.
	net, err = migration.ResolveNetwork(ctx, pool, 99999, 5)
	if err != nil || net != 5 {
		t.Errorf("missing tariff row: got %d, %v; want 5", net, err)
	}
}

func TestLotManagerAllocateAndReuse(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	providerID, _ := seedProvider(t, pool, "Lot Hospital", 0)
	visit := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	// Writes run straight on the pool here, so each assignment is durable
	// the moment GetOrCreate returns; Confirm stands in for the commit the
	// Writer performs.
	lots := migration.NewLotManager(zerolog.Nop())
	lotNo, err := lots.GetOrCreate(ctx, pool, providerID, visit, 1, 900, 250)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	lots.Confirm()
	if lotNo != 100000000 {
		t.Errorf("lot number = %d, want floor 100000000", lotNo)
	}

	again, err := lots.GetOrCreate(ctx, pool, providerID, visit.AddDate(0, 0, 5), 1, 900, 300)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	lots.Confirm()
	if again != lotNo {
		t.Errorf("same provider+month got lot %d, want %d", again, lotNo)
	}
	if n := count(t, pool, "SELECT COALESCE(lot_total_claim, 0) FROM lots WHERE lot_no = $1", lotNo); n != 2 {
		t.Errorf("lot_total_claim = %d, want 2", n)
	}

	other, err := lots.GetOrCreate(ctx, pool, providerID, visit.AddDate(0, 1, 0), 2, 900, 100)
	if err != nil {
		t.Fatalf("next month: %v", err)
	}
	lots.Confirm()
	if other != lotNo+1 {
		t.Errorf("next month lot = %d, want %d", other, lotNo+1)
	}

	// Data-entry and audit rows for each created lot.
	for _, l := range []int64{lotNo, other} {
		for _, action := range []string{"D", "A"} {
			if n := count(t, pool,
				"SELECT COUNT(*) FROM assign_lots WHERE al_lot_no = $1 AND al_action = $2 AND al_user_id = 1",
				l, action); n != 1 {
				t.Errorf("lot %d action %s: %d rows, want 1", l, action, n)
			}
		}
	}

	got := lots.Touched()
	if len(got) != 2 || got[0] != lotNo || got[1] != other {
		t.Errorf("Touched() = %v", got)
	}
}

func TestLotManagerColdCacheRediscovery(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	providerID, _ := seedProvider(t, pool, "Restart Hospital", 0)
	visit := time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC)

	first := migration.NewLotManager(zerolog.Nop())
	lotNo, err := first.GetOrCreate(ctx, pool, providerID, visit, 1, 900, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A fresh run must find the durable lot instead of allocating a new one.
	second := migration.NewLotManager(zerolog.Nop())
	again, err := second.GetOrCreate(ctx, pool, providerID, visit, 1, 900, 100)
	if err != nil {
		t.Fatalf("rediscover: %v", err)
	}
	if again != lotNo {
		t.Errorf("rediscovered lot = %d, want %d", again, lotNo)
	}
	if n := count(t, pool, "SELECT COUNT(*) FROM lots"); n != 1 {
		t.Errorf("lots table has %d rows, want 1", n)
	}
}

func TestWriteClaim(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	seedRecordRefs(t, pool)

	lots := migration.NewLotManager(zerolog.Nop())
	w := migration.NewWriter(lots, zerolog.Nop())

	rec := testRecord("MBR-001", "City Care")
	res, err := w.WriteClaim(ctx, pool, &rec)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if res.ClaimNumber != 300000000 {
		t.Errorf("claim number = %d, want floor 300000000", res.ClaimNumber)
	}
	if res.LotNo != 100000000 {
		t.Errorf("lot = %d, want 100000000", res.LotNo)
	}
	if len(res.NotFound) != 0 {
		t.Errorf("not-found entries: %v", res.NotFound)
	}

	if n := count(t, pool, "SELECT COUNT(*) FROM claim_details WHERE cd_claim_id = $1", res.ClaimID); n != 1 {
		t.Errorf("claim_details rows = %d, want 1", n)
	}
	if n := count(t, pool, "SELECT COUNT(*) FROM claim_drugs_prescribed WHERE cdp_claim_id = $1", res.ClaimID); n != 1 {
		t.Errorf("claim_drugs rows = %d, want 1", n)
	}
	if n := count(t, pool, "SELECT COUNT(*) FROM claim_codes WHERE cc_claim_id = $1", res.ClaimID); n != 1 {
		t.Errorf("claim_codes rows = %d, want 1", n)
	}

	// Dates shift one day forward before writing.
	var prescription time.Time
	if err := pool.QueryRow(ctx,
		"SELECT claim_prescription_date FROM claim WHERE claim_id = $1", res.ClaimID,
	).Scan(&prescription); err != nil {
		t.Fatalf("read prescription date: %v", err)
	}
	if got := prescription.Format("2006-01-02"); got != "2024-01-06" {
		t.Errorf("prescription date = %s, want 2024-01-06 (source 05/01/2024 + 1 day)", got)
	}

	// Totals are recomputed from the written rows: 100 service + 50 drug.
	var total float64
	if err := pool.QueryRow(ctx,
		"SELECT claim_total_amount FROM claim WHERE claim_id = $1", res.ClaimID,
	).Scan(&total); err != nil {
		t.Fatalf("read total: %v", err)
	}
	if total != 150 {
		t.Errorf("claim_total_amount = %v, want 150", total)
	}

	// Second claim: number increments, lot is shared.
	rec2 := testRecord("MBR-001", "City Care")
	rec2.ClaimNumber = "SRC-002"
	res2, err := w.WriteClaim(ctx, pool, &rec2)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if res2.ClaimNumber != 300000001 {
		t.Errorf("second claim number = %d, want 300000001", res2.ClaimNumber)
	}
	if res2.LotNo != res.LotNo {
		t.Errorf("second lot = %d, want shared %d", res2.LotNo, res.LotNo)
	}
}

func TestWriteClaimUnmatchedItemsSkipped(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	seedRecordRefs(t, pool)

	rec := testRecord("MBR-001", "City Care")
	rec.Item = append(rec.Item, "Mystery Procedure")
	rec.ItemType = append(rec.ItemType, "")
	rec.Quantity = append(rec.Quantity, "1")
	rec.Cost = append(rec.Cost, "75")
	rec.Mapped.Services = append(rec.Mapped.Services, model.NewUnmatched("Mystery Procedure"))

	lots := migration.NewLotManager(zerolog.Nop())
	w := migration.NewWriter(lots, zerolog.Nop())

	res, err := w.WriteClaim(ctx, pool, &rec)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if n := count(t, pool, "SELECT COUNT(*) FROM claim_details WHERE cd_claim_id = $1", res.ClaimID); n != 1 {
		t.Errorf("claim_details rows = %d, want 1 (unmatched item skipped)", n)
	}
	found := false
	for _, e := range res.NotFound {
		if e.Type == model.NotFoundService && e.Item == "Mystery Procedure" {
			found = true
		}
	}
	if !found {
		t.Errorf("unmatched item missing from not-found entries: %v", res.NotFound)
	}
}

func TestWriteClaimRollsBackOnFailure(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	seedRecordRefs(t, pool)

	// Fail the drug insert so the write dies mid-transaction.
	_, err := pool.Exec(ctx, `
		CREATE FUNCTION block_drug_insert() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'drug insert blocked';
		END
		$$ LANGUAGE plpgsql;
		CREATE TRIGGER block_drugs BEFORE INSERT ON claim_drugs_prescribed
		FOR EACH ROW EXECUTE FUNCTION block_drug_insert()`)
	if err != nil {
		t.Fatalf("install trigger: %v", err)
	}

	lots := migration.NewLotManager(zerolog.Nop())
	w := migration.NewWriter(lots, zerolog.Nop())

	rec := testRecord("MBR-001", "City Care")
	if _, err := w.WriteClaim(ctx, pool, &rec); err == nil {
		t.Fatal("write succeeded, want failure")
	}

	// Nothing from the failed claim persists, not even the lot.
	for _, table := range []string{"claim", "claim_details", "claim_drugs_prescribed", "claim_codes", "lots", "assign_lots"} {
		if n := count(t, pool, "SELECT COUNT(*) FROM "+table); n != 0 {
			t.Errorf("%s has %d rows after rollback, want 0", table, n)
		}
	}
}

func TestWriteClaimRetryAfterFailureGetsDurableLot(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	seedRecordRefs(t, pool)

	_, err := pool.Exec(ctx, `
		CREATE FUNCTION block_drug_insert() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'drug insert blocked';
		END
		$$ LANGUAGE plpgsql;
		CREATE TRIGGER block_drugs BEFORE INSERT ON claim_drugs_prescribed
		FOR EACH ROW EXECUTE FUNCTION block_drug_insert()`)
	if err != nil {
		t.Fatalf("install trigger: %v", err)
	}

	lots := migration.NewLotManager(zerolog.Nop())
	w := migration.NewWriter(lots, zerolog.Nop())

	rec := testRecord("MBR-001", "City Care")
	if _, err := w.WriteClaim(ctx, pool, &rec); err == nil {
		t.Fatal("write succeeded, want failure")
	}
	if n := count(t, pool, "SELECT COUNT(*) FROM lots"); n != 0 {
		t.Fatalf("lots table has %d rows after rollback, want 0", n)
	}
	if got := lots.Touched(); len(got) != 0 {
		t.Fatalf("Touched() = %v after rollback, want empty", got)
	}

	// Clear the fault; the same writer must not remember the rolled-back lot.
	if _, err := pool.Exec(ctx, "DROP TRIGGER block_drugs ON claim_drugs_prescribed"); err != nil {
		t.Fatalf("drop trigger: %v", err)
	}

	rec2 := testRecord("MBR-001", "City Care")
	rec2.ClaimNumber = "SRC-002"
	res, err := w.WriteClaim(ctx, pool, &rec2)
	if err != nil {
		t.Fatalf("retry write: %v", err)
	}

	// The committed claim references a lot row that actually exists.
	if n := count(t, pool, "SELECT COUNT(*) FROM lots WHERE lot_no = $1", res.LotNo); n != 1 {
		t.Errorf("lot %d has %d rows, want 1", res.LotNo, n)
	}
	if n := count(t, pool,
		"SELECT COUNT(*) FROM claim WHERE claim_lot_no = $1", res.LotNo); n != 1 {
		t.Errorf("claims in lot %d = %d, want 1", res.LotNo, n)
	}
	if n := count(t, pool, "SELECT COALESCE(lot_total_claim, 0) FROM lots WHERE lot_no = $1", res.LotNo); n != 1 {
		t.Errorf("lot_total_claim = %d, want 1", n)
	}
	if got := lots.Touched(); len(got) != 1 || got[0] != res.LotNo {
		t.Errorf("Touched() = %v, want [%d]", got, res.LotNo)
	}
}

func TestWriteClaimShapeMismatchWritesNothing(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	seedRecordRefs(t, pool)

	rec := testRecord("MBR-001", "City Care")
	rec.Quantity = rec.Quantity[:1]

	lots := migration.NewLotManager(zerolog.Nop())
	w := migration.NewWriter(lots, zerolog.Nop())

	_, err := w.WriteClaim(ctx, pool, &rec)
	var shape *model.DataShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("err = %v, want DataShapeError", err)
	}

	// The shape check runs before any statement; nothing touches the store.
	for _, table := range []string{"claim", "claim_details", "claim_drugs_prescribed", "claim_codes", "lots", "assign_lots"} {
		if n := count(t, pool, "SELECT COUNT(*) FROM "+table); n != 0 {
			t.Errorf("%s has %d rows, want 0", table, n)
		}
	}
}

func TestWriteClaimDiagnosisStagedMatching(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	seedRecordRefs(t, pool)

	// Lower case defeats the exact stage; the phonetic stage still matches.
	rec := testRecord("MBR-001", "City Care")
	rec.Diagnosis = []string{"malaria", "Malaria"}

	lots := migration.NewLotManager(zerolog.Nop())
	w := migration.NewWriter(lots, zerolog.Nop())

	res, err := w.WriteClaim(ctx, pool, &rec)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	// Both spellings resolve to the same code; duplicates are removed.
	if n := count(t, pool, "SELECT COUNT(*) FROM claim_codes WHERE cc_claim_id = $1", res.ClaimID); n != 1 {
		t.Errorf("claim_codes rows = %d, want 1 after dedup", n)
	}
	var code string
	if err := pool.QueryRow(ctx,
		"SELECT cc_code FROM claim_codes WHERE cc_claim_id = $1", res.ClaimID,
	).Scan(&code); err != nil {
		t.Fatalf("read code: %v", err)
	}
	if code != "B54" {
		t.Errorf("cc_code = %q, want B54", code)
	}
}

func TestReconcileLots(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	providerID, _ := seedProvider(t, pool, "Mixed Hospital", 0)
	visit := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	lots := migration.NewLotManager(zerolog.Nop())
	lotNo, err := lots.GetOrCreate(ctx, pool, providerID, visit, 1, 900, 100)
	if err != nil {
		t.Fatalf("create lot: %v", err)
	}
	lots.Confirm()
	homogeneous, err := lots.GetOrCreate(ctx, pool, providerID, visit.AddDate(0, 1, 0), 1, 900, 100)
	if err != nil {
		t.Fatalf("create homogeneous lot: %v", err)
	}
	lots.Confirm()

	// Two claims of different types in the first lot, two of the same type
	// in the second.
	for i, claimType := range []int{1, 2} {
		_, err := pool.Exec(ctx,
			`INSERT INTO claim (claim_number, claim_ms_id, claim_provider_id, claim_lot_no, claim_type, claim_total_amount)
			 VALUES ($1, 1, $2, $3, $4, $5)`,
			300000000+i, providerID, lotNo, claimType, 100*(i+1),
		)
		if err != nil {
			t.Fatalf("insert claim: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		_, err := pool.Exec(ctx,
			`INSERT INTO claim (claim_number, claim_ms_id, claim_provider_id, claim_lot_no, claim_type, claim_total_amount)
			 VALUES ($1, 1, $2, $3, 1, 50)`,
			300000010+i, providerID, homogeneous,
		)
		if err != nil {
			t.Fatalf("insert homogeneous claim: %v", err)
		}
	}

	if err := migration.ReconcileLots(ctx, pool, []int64{lotNo, homogeneous}, zerolog.Nop()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	var lotType int
	var amount float64
	if err := pool.QueryRow(ctx,
		"SELECT lot_type, lot_amount FROM lots WHERE lot_no = $1", lotNo,
	).Scan(&lotType, &amount); err != nil {
		t.Fatalf("read lot: %v", err)
	}
	if lotType != 0 {
		t.Errorf("lot_type = %d, want 0 (mixed)", lotType)
	}
	if amount != 300 {
		t.Errorf("lot_amount = %v, want 300", amount)
	}

	// The homogeneous lot keeps its type; only the amount is recomputed.
	var homType int
	var homAmount float64
	if err := pool.QueryRow(ctx,
		"SELECT lot_type, lot_amount FROM lots WHERE lot_no = $1", homogeneous,
	).Scan(&homType, &homAmount); err != nil {
		t.Fatalf("read homogeneous lot: %v", err)
	}
	if homType != 1 {
		t.Errorf("homogeneous lot_type = %d, want 1 (unchanged)", homType)
	}
	if homAmount != 100 {
		t.Errorf("homogeneous lot_amount = %v, want 100", homAmount)
	}

	// Idempotent: a second pass changes nothing.
	if err := migration.ReconcileLots(ctx, pool, []int64{lotNo}, zerolog.Nop()); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if err := pool.QueryRow(ctx,
		"SELECT lot_type, lot_amount FROM lots WHERE lot_no = $1", lotNo,
	).Scan(&lotType, &amount); err != nil {
		t.Fatalf("re-read lot: %v", err)
	}
	if lotType != 0 || amount != 300 {
		t.Errorf("after second pass: type %d amount %v", lotType, amount)
	}
}

func newTestLogs(dir string) migration.Logs {
	return migration.Logs{
		Success:  runlog.NewJSONLog[model.SuccessRecord](filepath.Join(dir, "success.json")),
		Failed:   runlog.NewJSONLog[model.FailedRecord](filepath.Join(dir, "failed.json")),
		NotFound: runlog.NewJSONLog[model.NotFoundEntry](filepath.Join(dir, "not_found.json")),
		Inputs:   runlog.NewInputLedger(filepath.Join(dir, "inputs.json")),
	}
}

func writeRecordsFile(t *testing.T, dir string, records []model.ClaimRecord) string {
	t.Helper()
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal records: %v", err)
	}
	path := filepath.Join(dir, "records.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write records: %v", err)
	}
	return path
}

func TestOrchestratorRun(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	seedRecordRefs(t, pool)

	good := testRecord("MBR-001", "City Care")
	bad := testRecord("GHOST", "City Care")
	bad.ClaimNumber = "SRC-002"

	dir := t.TempDir()
	records := writeRecordsFile(t, dir, []model.ClaimRecord{good, bad})
	logs := newTestLogs(dir)

	orch := migration.NewOrchestrator(pool, logs, 1, zerolog.Nop())
	summary, err := orch.Run(ctx, records)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.TotalRecords != 2 || summary.ProcessedRecords != 1 || summary.FailedRecords != 1 {
		t.Errorf("summary = %+v, want 2 total / 1 processed / 1 failed", summary)
	}
	if summary.LotsTouched != 1 {
		t.Errorf("LotsTouched = %d, want 1", summary.LotsTouched)
	}

	successes, err := logs.Success.Read()
	if err != nil {
		t.Fatalf("read success log: %v", err)
	}
	if len(successes) != 1 || successes[0].AssignedClaimNumber != 300000000 {
		t.Errorf("success log = %+v", successes)
	}

	failures, err := logs.Failed.Read()
	if err != nil {
		t.Fatalf("read failed log: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("failed log has %d entries, want 1", len(failures))
	}
	if want := "Member not found for memberNumber: GHOST"; failures[0].Error != want {
		t.Errorf("failure error = %q, want %q", failures[0].Error, want)
	}
	if failures[0].StackTrace == "" {
		t.Error("failure stack trace is empty")
	}

	// The failed claim left no rows behind.
	if n := count(t, pool, "SELECT COUNT(*) FROM claim"); n != 1 {
		t.Errorf("claim table has %d rows, want 1", n)
	}

	// Segregation buckets failures by their error class.
	segDir := filepath.Join(dir, "segregated")
	counts, err := orch.Segregate(segDir)
	if err != nil {
		t.Fatalf("segregate: %v", err)
	}
	if counts["Member not found for memberNumber"] != 1 {
		t.Errorf("segregation counts = %v", counts)
	}
	if _, err := os.Stat(filepath.Join(segDir, "member-not-found-for-membernumber.json")); err != nil {
		t.Errorf("bucket file missing: %v", err)
	}
}

func TestOrchestratorSkipsProcessedInput(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	seedRecordRefs(t, pool)

	dir := t.TempDir()
	records := writeRecordsFile(t, dir, []model.ClaimRecord{testRecord("MBR-001", "City Care")})
	logs := newTestLogs(dir)

	orch := migration.NewOrchestrator(pool, logs, 0, zerolog.Nop())
	if _, err := orch.Run(ctx, records); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Same content under a different name is still a duplicate.
	renamed := filepath.Join(dir, "records_copy.json")
	data, err := os.ReadFile(records)
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	if err := os.WriteFile(renamed, data, 0o644); err != nil {
		t.Fatalf("copy records: %v", err)
	}

	again := migration.NewOrchestrator(pool, logs, 0, zerolog.Nop())
	summary, err := again.Run(ctx, renamed)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !summary.SkippedInput {
		t.Error("second run did not skip the duplicate input")
	}
	if n := count(t, pool, "SELECT COUNT(*) FROM claim"); n != 1 {
		t.Errorf("claim table has %d rows after duplicate run, want 1", n)
	}
}
