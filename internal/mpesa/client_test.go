package mpesa_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kodisha/payments/internal/mpesa"
)

func TestMpesaClient(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Mpesa Client Suite")
}

var _ = Describe("NormalizePhone", func() {
	It("passes through numbers already in international format", func() {
		Expect(mpesa.NormalizePhone("254712345678")).To(Equal("254712345678"))
	})

	It("strips a leading plus sign", func() {
		Expect(mpesa.NormalizePhone("+254712345678")).To(Equal("254712345678"))
	})

	It("converts a local 07 prefix to 2547", func() {
		Expect(mpesa.NormalizePhone("0712345678")).To(Equal("254712345678"))
	})

	It("trims surrounding whitespace", func() {
		Expect(mpesa.NormalizePhone(" 0712345678 ")).To(Equal("254712345678"))
	})
})

var _ = Describe("Client", func() {
	var (
		server        *httptest.Server
		client        *mpesa.Client
		logger        *slog.Logger
		tokenRequests int32
		stkHandler    func(w http.ResponseWriter, r *http.Request)
	)

	newTestClient := func(baseURL string) *mpesa.Client {
		c, err := mpesa.NewClient(mpesa.Config{
			Environment:    "sandbox",
			ConsumerKey:    "key",
			ConsumerSecret: "secret",
			ShortCode:      "174379",
			Passkey:        "passkey",
			CallbackURL:    "https://example.com/api/v1/payments/callback",
			BaseURL:        baseURL,
		}, logger)
		Expect(err).ToNot(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		atomic.StoreInt32(&tokenRequests, 0)

		stkHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"MerchantRequestID":   "mr-1",
				"CheckoutRequestID":   "ws_CO_1",
				"ResponseCode":        "0",
				"ResponseDescription": "Success. Request accepted for processing",
			})
		}

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/oauth/v1/generate") {
				atomic.AddInt32(&tokenRequests, 1)
				Expect(r.Header.Get("Authorization")).To(HavePrefix("Basic "))
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"access_token": "test-token",
					"expires_in":   "3599",
				})
				return
			}
			stkHandler(w, r)
		}))

		client = newTestClient(server.URL)
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewClient", func() {
		It("rejects missing credentials", func() {
			_, err := mpesa.NewClient(mpesa.Config{
				ShortCode:   "174379",
				Passkey:     "passkey",
				CallbackURL: "https://example.com/cb",
			}, logger)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a missing callback URL", func() {
			_, err := mpesa.NewClient(mpesa.Config{
				ConsumerKey:    "key",
				ConsumerSecret: "secret",
				ShortCode:      "174379",
				Passkey:        "passkey",
			}, logger)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("GetAccessToken", func() {
		It("caches the token across calls", func() {
			ctx := context.Background()

			first, err := client.GetAccessToken(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(first).To(Equal("test-token"))

			second, err := client.GetAccessToken(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(second).To(Equal("test-token"))

			Expect(atomic.LoadInt32(&tokenRequests)).To(Equal(int32(1)))
		})
	})

	Describe("InitiateSTKPush", func() {
		It("submits a charge and returns the checkout request id", func() {
			result, err := client.InitiateSTKPush(context.Background(), mpesa.ChargeRequest{
				Amount:           1500,
				PhoneNumber:      "0712345678",
				AccountReference: "booking-1",
				Description:      "Booking payment",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Success).To(BeTrue())
			Expect(result.CheckoutRequestID).To(Equal("ws_CO_1"))
		})

		It("normalizes the phone and rounds the amount on the wire", func() {
			var captured map[string]interface{}
			stkHandler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer test-token"))
				Expect(json.NewDecoder(r.Body).Decode(&captured)).To(Succeed())
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"CheckoutRequestID": "ws_CO_2",
					"ResponseCode":      "0",
				})
			}

			_, err := client.InitiateSTKPush(context.Background(), mpesa.ChargeRequest{
				Amount:           1500.7,
				PhoneNumber:      "0712345678",
				AccountReference: "booking-1",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(captured["PhoneNumber"]).To(Equal("254712345678"))
			Expect(captured["PartyA"]).To(Equal("254712345678"))
			Expect(captured["Amount"]).To(BeNumerically("==", 1501))
		})

		It("rejects a non-positive amount locally", func() {
			_, err := client.InitiateSTKPush(context.Background(), mpesa.ChargeRequest{
				Amount:      0,
				PhoneNumber: "0712345678",
			})
			Expect(err).To(HaveOccurred())
		})

		It("rejects an obviously short phone number locally", func() {
			_, err := client.InitiateSTKPush(context.Background(), mpesa.ChargeRequest{
				Amount:      100,
				PhoneNumber: "0712",
			})
			Expect(err).To(HaveOccurred())
		})

		It("surfaces a gateway rejection in the result, not as an error", func() {
			stkHandler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{
					"errorMessage": "Invalid CallBackURL",
				})
			}

			result, err := client.InitiateSTKPush(context.Background(), mpesa.ChargeRequest{
				Amount:      100,
				PhoneNumber: "0712345678",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(Equal("Invalid CallBackURL"))
		})

		It("refreshes the token and retries once on a 401", func() {
			var stkCalls int32
			stkHandler = func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&stkCalls, 1) == 1 {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"CheckoutRequestID": "ws_CO_3",
					"ResponseCode":      "0",
				})
			}

			result, err := client.InitiateSTKPush(context.Background(), mpesa.ChargeRequest{
				Amount:      100,
				PhoneNumber: "0712345678",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Success).To(BeTrue())
			Expect(atomic.LoadInt32(&stkCalls)).To(Equal(int32(2)))
			Expect(atomic.LoadInt32(&tokenRequests)).To(Equal(int32(2)))
		})
	})

	Describe("QueryStatus", func() {
		It("reports success only when the payment itself completed", func() {
			stkHandler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"ResponseCode": "0",
					"ResultCode":   "1032",
					"ResultDesc":   "Request cancelled by user",
				})
			}

			result, err := client.QueryStatus(context.Background(), "ws_CO_1")

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Success).To(BeFalse())
			Expect(result.ResultCode).To(Equal("1032"))
		})

		It("reports success for a completed payment", func() {
			stkHandler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"ResponseCode": "0",
					"ResultCode":   "0",
					"ResultDesc":   "The service request is processed successfully.",
				})
			}

			result, err := client.QueryStatus(context.Background(), "ws_CO_1")

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Success).To(BeTrue())
		})

		It("requires a checkout request id", func() {
			_, err := client.QueryStatus(context.Background(), "")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("SendB2C", func() {
		It("returns the conversation id on acceptance", func() {
			stkHandler = func(w http.ResponseWriter, r *http.Request) {
				var payload map[string]interface{}
				Expect(json.NewDecoder(r.Body).Decode(&payload)).To(Succeed())
				Expect(payload["CommandID"]).To(Equal("BusinessPayment"))
				Expect(payload["PartyB"]).To(Equal("254733999888"))

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"ConversationID":      "AG_20260829_0001",
					"ResponseCode":        "0",
					"ResponseDescription": "Accept the service request successfully.",
				})
			}

			result, err := client.SendB2C(context.Background(), "0733999888", 2500, "Kodisha Earnings - Earnings Payout")

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Success).To(BeTrue())
			Expect(result.ConversationID).To(Equal("AG_20260829_0001"))
		})

		It("rejects a non-positive amount locally", func() {
			_, err := client.SendB2C(context.Background(), "0733999888", 0, "payout")
			Expect(err).To(HaveOccurred())
		})
	})
})
