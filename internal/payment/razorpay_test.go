package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
)

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test" || pass != "secret" {
			t.Errorf("missing basic auth")
		}
		var body OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Amount != 50000 || body.Currency != "INR" || body.Notes["plan"] != "monthly" {
			t.Errorf("unexpected body %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_123","status":"created"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{KeyID: "rzp_test", KeySecret: "secret", BaseURL: srv.URL}, srv.Client())
	id, err := client.CreateOrder(context.Background(), OrderRequest{
		Amount:   50000,
		Currency: "inr",
		Receipt:  "rcpt_1",
		Notes:    map[string]string{"plan": "monthly"},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if id != "order_123" {
		t.Fatalf("unexpected id %s", id)
	}
}

func TestCreateOrderGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"BAD_REQUEST_ERROR"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(Config{KeyID: "rzp_test", KeySecret: "secret", BaseURL: srv.URL}, srv.Client())
	_, err := client.CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: "INR"})
	appErr := apperr.As(err)
	if appErr == nil || appErr.Code != apperr.CodeGatewayError || appErr.Kind != apperr.KindInternal {
		t.Fatalf("expected gateway_error, got %v", err)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	client := NewClient(Config{KeyID: "k", KeySecret: "s"}, nil)
	if _, err := client.CreateOrder(context.Background(), OrderRequest{Amount: 0, Currency: "INR"}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVerifyCallback(t *testing.T) {
	client := NewClient(Config{KeyID: "k", KeySecret: "secret"}, nil)
	sig := Sign("secret", "order_1", "pay_1")
	if !client.VerifyCallback("order_1", "pay_1", sig) {
		t.Fatalf("valid signature rejected")
	}
	if client.VerifyCallback("order_1", "pay_2", sig) {
		t.Fatalf("signature for another payment accepted")
	}
	if client.VerifyCallback("order_1", "pay_1", Sign("other", "order_1", "pay_1")) {
		t.Fatalf("signature with wrong secret accepted")
	}
	if client.VerifyCallback("order_1", "pay_1", "") {
		t.Fatalf("empty signature accepted")
	}
}
