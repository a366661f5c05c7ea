package services

import (
	"context"
	"errors"
	"testing"

	"giftspa/server/internal/models"
	"giftspa/server/internal/testutil"
)

const syncYAML = `
companies:
  - id: 7b0c2c4e-1f59-4a55-9d2e-0a8f4f1c9a01
    label: Spa Есентай
    address: Алматы, пр. Аль-Фараби 77
    onevision:
      merchant_id: m-77
      api_key: ${GIFTSPA_TEST_OV_KEY}
      secret: s-77
    aliases: [legacy-77]
    procedures:
      - id: 2f7e9a1a-3f0c-4c38-8f57-3c5a0d1e0b11
        name: Стоун-терапия
        price: 30000
        discount_percent: 10
      - id: 2f7e9a1a-3f0c-4c38-8f57-3c5a0d1e0b12
        name: Хаммам
        price: 15000
        active: false
`

func TestParseCompanySyncFile(t *testing.T) {
	t.Setenv("GIFTSPA_TEST_OV_KEY", "key-from-env")

	file, err := ParseCompanySyncFile([]byte(syncYAML))
	if err != nil {
		t.Fatalf("ParseCompanySyncFile failed: %v", err)
	}
	if len(file.Companies) != 1 {
		t.Fatalf("companies = %d, want 1", len(file.Companies))
	}
	c := file.Companies[0]
	if c.OneVision.APIKey != "key-from-env" {
		t.Errorf("api key = %q, want value from env", c.OneVision.APIKey)
	}
	if len(c.Procedures) != 2 || c.Procedures[1].Active == nil || *c.Procedures[1].Active {
		t.Errorf("unexpected procedures: %+v", c.Procedures)
	}
}

func TestParseCompanySyncFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no label", "companies:\n  - id: c-1\n"},
		{"zero price", "companies:\n  - id: c-1\n    label: A\n    procedures:\n      - id: p-1\n        name: X\n        price: 0\n"},
		{"bad discount", "companies:\n  - id: c-1\n    label: A\n    procedures:\n      - id: p-1\n        name: X\n        price: 10\n        discount_percent: 120\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCompanySyncFile([]byte(tt.yaml)); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCompanySync_UpsertAndInvalidate(t *testing.T) {
	t.Setenv("GIFTSPA_TEST_OV_KEY", "key-from-env")
	db := testutil.NewTestDB(t)
	catalog := NewCatalogCache(db, nil)
	ctx := context.Background()

	if err := catalog.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if companies, _ := catalog.Companies(ctx); len(companies) != 0 {
		t.Fatalf("expected empty catalog, got %d", len(companies))
	}

	file, err := ParseCompanySyncFile([]byte(syncYAML))
	if err != nil {
		t.Fatalf("ParseCompanySyncFile failed: %v", err)
	}
	syncer := NewCompanySyncService(db, catalog)

	result, err := syncer.Sync(ctx, file)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.Companies != 1 || result.Aliases != 1 || result.Procedures != 2 {
		t.Errorf("unexpected result: %+v", result)
	}

	// Повторная синхронизация не плодит дубликаты
	file.Companies[0].Label = "Spa Есентай Молл"
	if _, err := syncer.Sync(ctx, file); err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if n := testutil.Count(t, db, &models.Company{}); n != 1 {
		t.Errorf("companies = %d, want 1", n)
	}
	if n := testutil.Count(t, db, &models.SpaProcedure{}); n != 2 {
		t.Errorf("procedures = %d, want 2", n)
	}

	companies, err := catalog.Companies(ctx)
	if err != nil {
		t.Fatalf("Companies failed: %v", err)
	}
	if len(companies) != 1 || companies[0].Label != "Spa Есентай Молл" {
		t.Errorf("catalog was not invalidated: %+v", companies)
	}

	procedures, err := catalog.Procedures(ctx, companies[0].ID)
	if err != nil {
		t.Fatalf("Procedures failed: %v", err)
	}
	if len(procedures) != 1 || procedures[0].Name != "Стоун-терапия" {
		t.Errorf("only active procedure expected, got %+v", procedures)
	}

	if _, err := catalog.Procedures(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
