package http

import (
	"net/http"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
	"github.com/techtuto2024/techtuto-backend/internal/metrics"
	"github.com/techtuto2024/techtuto-backend/internal/payment"
)

type verifyPaymentRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) error {
	var req payment.OrderRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	orderID, err := s.deps.Payments.CreateOrder(r.Context(), req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"orderId": orderID})
	return nil
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) error {
	var req verifyPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	ok := s.deps.Payments.VerifyCallback(req.OrderID, req.PaymentID, req.Signature)
	if !ok {
		metrics.PaymentVerifications.WithLabelValues("invalid").Inc()
		return apperr.Validation(apperr.CodeInvalidSignature, "Invalid payment signature")
	}
	metrics.PaymentVerifications.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}
