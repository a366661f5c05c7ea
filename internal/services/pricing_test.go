package services

import (
	"strings"
	"testing"

	"giftspa/server/internal/models"
)

func TestDiscountedPrice(t *testing.T) {
	tests := []struct {
		name     string
		price    int64
		discount int
		want     int64
	}{
		{"10 percent", 20000, 10, 18000},
		{"no discount", 30000, 0, 30000},
		{"half rounds up", 999, 50, 500},
		{"third", 10000, 33, 6700},
		{"full discount", 5000, 100, 0},
		{"discount above 100 clamped", 1000, 150, 0},
		{"negative discount clamped", 1000, -5, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DiscountedPrice(tt.price, tt.discount); got != tt.want {
				t.Errorf("DiscountedPrice(%d, %d) = %d, want %d", tt.price, tt.discount, got, tt.want)
			}
		})
	}
}

func TestProcedureTotal(t *testing.T) {
	lines := []models.CertificateServiceLine{
		ServiceLineFromProcedure(models.SpaProcedure{ID: "a", Name: "Массаж", Price: 20000, DiscountPercent: 10}),
		ServiceLineFromProcedure(models.SpaProcedure{ID: "b", Name: "Хаммам", Price: 30000}),
	}

	if got := ProcedureTotal(lines); got != 48000 {
		t.Fatalf("ProcedureTotal = %d, want 48000", got)
	}
	if lines[0].FinalPrice != 18000 {
		t.Errorf("FinalPrice = %d, want 18000", lines[0].FinalPrice)
	}
	if ProcedureTotal(nil) != 0 {
		t.Error("empty total must be 0")
	}
}

func TestFormatMoney(t *testing.T) {
	got := FormatMoney(48000, "KZT")
	if !strings.HasSuffix(got, " ₸") {
		t.Errorf("FormatMoney = %q, want tenge suffix", got)
	}
	if !strings.HasPrefix(got, "48") || !strings.Contains(got, "000") {
		t.Errorf("FormatMoney = %q, want grouped 48 000", got)
	}

	if got := FormatMoney(100, "USD"); !strings.HasSuffix(got, " USD") {
		t.Errorf("FormatMoney(USD) = %q", got)
	}
}
