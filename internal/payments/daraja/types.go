// Package daraja talks to Safaricom's M-Pesa Daraja API: OAuth token
// issuance, STK push initiation, status queries and callback parsing.
package daraja

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// STKPushRequest is the Lipa Na M-Pesa Online payload.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int    `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is Daraja's synchronous answer to an STK push.
// ResponseCode "0" means the push was accepted for processing; the
// outcome arrives later on the callback.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// QueryRequest asks Daraja for the state of an earlier push.
type QueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// QueryResponse reports the state of an earlier push.
type QueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// CallbackEnvelope is the asynchronous result Daraja posts to the
// callback URL once the customer acts on the push.
type CallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback carries the result of one push. ResultCode 0 is a
// successful payment; anything else is a failure or cancellation.
type STKCallback struct {
	MerchantRequestID string        `json:"MerchantRequestID"`
	CheckoutRequestID string        `json:"CheckoutRequestID"`
	ResultCode        int           `json:"ResultCode"`
	ResultDesc        string        `json:"ResultDesc"`
	CallbackMetadata  *CallbackMeta `json:"CallbackMetadata,omitempty"`
}

// CallbackMeta is present only on success.
type CallbackMeta struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem is one name/value pair in the callback metadata. Values
// mix strings and numbers on the wire, hence the any type.
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// Receipt is the typed projection of the callback metadata.
type Receipt struct {
	MpesaReceiptNumber string
	Amount             float64
	TransactionDate    time.Time
	PhoneNumber        string
}

// ParseReceipt extracts the known metadata items in one pass. Missing
// or malformed items leave zero values; callers decide how strict to be.
func (c *STKCallback) ParseReceipt() Receipt {
	var r Receipt
	if c.CallbackMetadata == nil {
		return r
	}
	for _, item := range c.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			if s, ok := item.Value.(string); ok {
				r.MpesaReceiptNumber = s
			}
		case "Amount":
			switch v := item.Value.(type) {
			case float64:
				r.Amount = v
			case int:
				r.Amount = float64(v)
			}
		case "TransactionDate":
			// Arrives as a numeric YYYYMMDDHHMMSS.
			if v, ok := item.Value.(float64); ok {
				if t, err := time.Parse("20060102150405", wireNumber(v)); err == nil {
					r.TransactionDate = t
				}
			}
		case "PhoneNumber":
			switch v := item.Value.(type) {
			case float64:
				r.PhoneNumber = wireNumber(v)
			case string:
				r.PhoneNumber = v
			}
		}
	}
	return r
}

// wireNumber renders a JSON number that is semantically an integer,
// such as a transaction date or an MSISDN.
func wireNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Password derives the Lipa Na M-Pesa password for a timestamp.
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

// Timestamp formats a time the way Daraja expects.
func Timestamp(t time.Time) string {
	return t.Format("20060102150405")
}

// NormalizePhone converts local formats to the 254XXXXXXXXX form
// Daraja requires. A leading 0 becomes 254 and any + is stripped.
func NormalizePhone(phone string) string {
	p := strings.TrimSpace(phone)
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "0") {
		p = "254" + p[1:]
	}
	return p
}
