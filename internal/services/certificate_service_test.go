package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"giftspa/server/internal/models"
)

func TestGenerateCertificateCode(t *testing.T) {
	re := regexp.MustCompile(`^SPA-[A-Z0-9]{4}-[A-Z0-9]{4}$`)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateCertificateCode()
		if err != nil {
			t.Fatalf("GenerateCertificateCode failed: %v", err)
		}
		if !re.MatchString(code) {
			t.Fatalf("unexpected code format: %s", code)
		}
		seen[code] = true
	}
	if len(seen) < 195 {
		t.Errorf("too many collisions: %d unique of 200", len(seen))
	}
}

func TestRedeem(t *testing.T) {
	env := newTestEnv(t, "", nil)
	created := env.createOrder(t, giftOrderInput(env.company.ID))
	admin := Actor{UserID: "u-1", Email: "admin@spa.kz", Role: models.RoleAdmin}
	ctx := context.Background()

	if _, err := env.certificates.Redeem(ctx, created.Certificate.Code, admin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unpaid redeem err = %v, want ErrForbidden", err)
	}

	if _, err := env.payments.MarkPaymentAsPaid(ctx, created.PaymentID, "provider"); err != nil {
		t.Fatalf("MarkPaymentAsPaid failed: %v", err)
	}

	check, err := env.certificates.Check(ctx, " "+created.Certificate.Code+" ", admin)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !check.Paid || !check.Redeemable {
		t.Errorf("paid certificate must be redeemable: %+v", check)
	}

	redeemed, err := env.certificates.Redeem(ctx, created.Certificate.Code, admin)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if redeemed.Status != models.CertificateStatusUsed || redeemed.RedeemedAt == nil || redeemed.Redeemable {
		t.Errorf("unexpected redeem result: %+v", redeemed)
	}

	if _, err := env.certificates.Redeem(ctx, created.Certificate.Code, admin); !errors.Is(err, ErrValidation) {
		t.Errorf("second redeem err = %v, want ErrValidation", err)
	}
}

func TestCheck_Scope(t *testing.T) {
	env := newTestEnv(t, "", nil)
	created := env.createOrder(t, giftOrderInput(env.company.ID))

	stranger := Actor{UserID: "u-3", Email: "x@spa.kz", Role: models.RoleManager, CompanyID: "another"}
	if _, err := env.certificates.Check(context.Background(), created.Certificate.Code, stranger); !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
	if _, err := env.certificates.Check(context.Background(), "SPA-0000-0000", stranger); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetWithOrder(t *testing.T) {
	env := newTestEnv(t, "", nil)
	created := env.createOrder(t, giftOrderInput(env.company.ID))

	cert, order, err := env.certificates.GetWithOrder(context.Background(), created.Certificate.ID)
	if err != nil {
		t.Fatalf("GetWithOrder failed: %v", err)
	}
	if cert.Code != created.Certificate.Code || order.ID != created.Order.ID {
		t.Errorf("unexpected result: %s / %s", cert.Code, order.ID)
	}
	if order.IsPaid() {
		t.Errorf("new order must not be paid")
	}
}
