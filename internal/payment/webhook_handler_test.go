package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	mpesatypes "github.com/kodisha/payments/internal/core/datamodel/mpesa"
	paymentPkg "github.com/kodisha/payments/internal/payment"
	"github.com/kodisha/payments/internal/transport"
)

// Mock payment service recording callbacks it was asked to process
type mockPaymentService struct {
	callbacks    []*mpesatypes.STKCallback
	processError error
}

func (m *mockPaymentService) Initiate(ctx context.Context, requesterID string, req *paymentPkg.InitiatePaymentRequest) (*paymentPkg.InitiatePaymentResponse, error) {
	return nil, errors.New("not implemented")
}

func (m *mockPaymentService) GetStatus(ctx context.Context, transactionID, requesterID string) (*paymentPkg.PaymentStatusView, error) {
	return nil, errors.New("not implemented")
}

func (m *mockPaymentService) History(ctx context.Context, requesterID string) ([]*paymentPkg.PaymentStatusView, error) {
	return nil, errors.New("not implemented")
}

func (m *mockPaymentService) ProcessCallback(ctx context.Context, cb *mpesatypes.STKCallback) error {
	m.callbacks = append(m.callbacks, cb)
	return m.processError
}

var _ = Describe("WebhookHandler", func() {
	var (
		handler     *paymentPkg.WebhookHandler
		mockService *mockPaymentService
		logger      *slog.Logger
	)

	newHandler := func(secret string) *paymentPkg.WebhookHandler {
		return paymentPkg.NewWebhookHandler(transport.NewBaseHandler(logger), mockService, secret, logger)
	}

	post := func(h *paymentPkg.WebhookHandler, target string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
		rec := httptest.NewRecorder()
		h.HandleMpesaCallback(rec, req)
		return rec
	}

	callbackBody := func(resultCode int, resultDesc string) []byte {
		envelope := map[string]interface{}{
			"Body": map[string]interface{}{
				"stkCallback": map[string]interface{}{
					"MerchantRequestID": "mr-1",
					"CheckoutRequestID": "ws_CO_1",
					"ResultCode":        resultCode,
					"ResultDesc":        resultDesc,
				},
			},
		}
		body, err := json.Marshal(envelope)
		Expect(err).ToNot(HaveOccurred())
		return body
	}

	decodeAck := func(rec *httptest.ResponseRecorder) paymentPkg.CallbackAck {
		var ack paymentPkg.CallbackAck
		Expect(json.Unmarshal(rec.Body.Bytes(), &ack)).To(Succeed())
		return ack
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		mockService = &mockPaymentService{}
		handler = newHandler("")
	})

	Context("with a well-formed success callback", func() {
		It("hands the callback to the service and acks", func() {
			rec := post(handler, "/api/v1/payments/callback", callbackBody(0, "Success"))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeAck(rec).ResultCode).To(Equal(0))
			Expect(mockService.callbacks).To(HaveLen(1))
			Expect(mockService.callbacks[0].CheckoutRequestID).To(Equal("ws_CO_1"))
		})
	})

	Context("with a failure callback", func() {
		It("passes the result code and description through", func() {
			rec := post(handler, "/api/v1/payments/callback", callbackBody(1032, "Request cancelled by user"))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(mockService.callbacks[0].ResultCode).To(Equal(1032))
			Expect(mockService.callbacks[0].ResultDesc).To(Equal("Request cancelled by user"))
		})
	})

	Context("with a malformed payload", func() {
		It("still acks without touching the service", func() {
			rec := post(handler, "/api/v1/payments/callback", []byte("{not json"))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeAck(rec).ResultCode).To(Equal(0))
			Expect(mockService.callbacks).To(BeEmpty())
		})

		It("still acks when the checkout request id is missing", func() {
			body, _ := json.Marshal(map[string]interface{}{
				"Body": map[string]interface{}{"stkCallback": map[string]interface{}{}},
			})
			rec := post(handler, "/api/v1/payments/callback", body)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(mockService.callbacks).To(BeEmpty())
		})
	})

	Context("when processing fails internally", func() {
		It("still acks so the provider does not retry forever", func() {
			mockService.processError = errors.New("database unavailable")

			rec := post(handler, "/api/v1/payments/callback", callbackBody(0, "Success"))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeAck(rec).ResultCode).To(Equal(0))
		})
	})

	Context("with a configured callback secret", func() {
		BeforeEach(func() {
			handler = newHandler("topsecret")
		})

		It("accepts a delivery carrying the right secret", func() {
			rec := post(handler, "/api/v1/payments/callback?secret=topsecret", callbackBody(0, "Success"))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(mockService.callbacks).To(HaveLen(1))
		})

		It("rejects a delivery with the wrong secret", func() {
			rec := post(handler, "/api/v1/payments/callback?secret=wrong", callbackBody(0, "Success"))

			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(decodeAck(rec).ResultCode).To(Equal(1))
			Expect(mockService.callbacks).To(BeEmpty())
		})
	})
})
