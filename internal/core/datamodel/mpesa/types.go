package mpesa

import "strconv"

// Result is the normalized outcome of a gateway call. Transport and
// provider-side failures land in Error rather than a returned error so
// callers can persist the reason onto the ledger row directly.
type Result struct {
	Success             bool
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	// ResultCode is set by status queries only: "0" means the payment
	// completed, any other non-empty value is a definitive failure, and
	// empty means the provider gave no verdict yet.
	ResultCode     string
	ConversationID string
	Error          string
}

// STKPushRequest is the Daraja Lipa Na M-Pesa Online payload.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type STKQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type STKQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// B2CRequest is the business-to-customer payment payload used for host
// payouts.
type B2CRequest struct {
	InitiatorName      string `json:"InitiatorName"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	Amount             int64  `json:"Amount"`
	PartyA             string `json:"PartyA"`
	PartyB             string `json:"PartyB"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
	Occasion           string `json:"Occasion"`
}

type B2CResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// CallbackEnvelope is the fixed Body.stkCallback shape the provider POSTs
// to the webhook after a charge attempt resolves.
type CallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata is an unordered list of tagged values, present only on
// success. Items may be missing or reordered between deliveries, so access
// goes through name lookup rather than positional decoding.
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// StringValue returns the named item rendered as a string, or "" when the
// item is absent.
func (m *CallbackMetadata) StringValue(name string) string {
	if m == nil {
		return ""
	}
	for _, item := range m.Item {
		if item.Name != name {
			continue
		}
		switch v := item.Value.(type) {
		case string:
			return v
		case float64:
			// JSON numbers decode as float64; phone numbers arrive as whole numbers
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10)
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// NumberValue returns the named item as a number, or 0 when absent or not
// numeric.
func (m *CallbackMetadata) NumberValue(name string) float64 {
	if m == nil {
		return 0
	}
	for _, item := range m.Item {
		if item.Name != name {
			continue
		}
		if v, ok := item.Value.(float64); ok {
			return v
		}
	}
	return 0
}

// Metadata item names defined by the Daraja STK callback contract.
const (
	MetadataReceiptNumber = "MpesaReceiptNumber"
	MetadataAmount        = "Amount"
	MetadataPhoneNumber   = "PhoneNumber"
)
