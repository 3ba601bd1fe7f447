package daraja

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		Environment:    "sandbox",
		ShortCode:      "174379",
		Passkey:        "test-passkey",
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		CallbackURL:    "https://pos.example.com/api/payments/mpesa/callback",
	})
	c.SetBaseURL(srv.URL)
	return c, srv
}

func TestAccessTokenUsesBasicAuth(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/v1/generate", r.URL.Path)
		require.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "expires_in": "3599"})
	}))

	tok, err := client.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("key:secret"))
	assert.Equal(t, expected, gotAuth)
}

func TestAccessTokenIsCached(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "expires_in": "3599"})
	}))

	for i := 0; i < 3; i++ {
		_, err := client.AccessToken(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

func TestSTKPushBuildsDarajaPayload(t *testing.T) {
	var (
		got STKPushRequest
		raw map[string]any
	)
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "expires_in": "3599"})
		case "/mpesa/stkpush/v1/processrequest":
			require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, &got))
			require.NoError(t, json.Unmarshal(body, &raw))
			_ = json.NewEncoder(w).Encode(STKPushResponse{
				ResponseCode:      "0",
				CheckoutRequestID: "ws_CO_42",
				MerchantRequestID: "mr_42",
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	client.now = func() time.Time { return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC) }

	resp, err := client.STKPush(context.Background(), "254712345678", 708, "MNG20250314092653001", "Payment for order")
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_42", resp.CheckoutRequestID)

	assert.Equal(t, "174379", got.BusinessShortCode)
	assert.Equal(t, "CustomerPayBillOnline", got.TransactionType)
	assert.Equal(t, 708, got.Amount)
	// Amount must go over the wire as a JSON number, not a string.
	assert.Equal(t, float64(708), raw["Amount"])
	assert.Equal(t, "254712345678", got.PartyA)
	assert.Equal(t, "174379", got.PartyB)
	assert.Equal(t, "254712345678", got.PhoneNumber)
	assert.Equal(t, "20250314092653", got.Timestamp)
	assert.Equal(t, "MNG20250314092653001", got.AccountReference)
	assert.Equal(t, "https://pos.example.com/api/payments/mpesa/callback", got.CallBackURL)

	assert.Equal(t, Password("174379", "test-passkey", "20250314092653"), got.Password)
}

func TestQueryStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "expires_in": "3599"})
		case "/mpesa/stkpushquery/v1/query":
			var req QueryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "ws_CO_42", req.CheckoutRequestID)
			_ = json.NewEncoder(w).Encode(QueryResponse{ResultCode: "0", ResultDesc: "Processed"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	resp, err := client.QueryStatus(context.Background(), "ws_CO_42")
	require.NoError(t, err)
	assert.Equal(t, "0", resp.ResultCode)
}

func TestPassword(t *testing.T) {
	got := Password("174379", "passkey", "20250314092653")
	want := base64.StdEncoding.EncodeToString([]byte("174379passkey20250314092653"))
	assert.Equal(t, want, got)
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"0712345678":    "254712345678",
		"+254712345678": "254712345678",
		"254712345678":  "254712345678",
		" 0712345678 ":  "254712345678",
		"+254101234567": "254101234567",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), "input %q", in)
	}
}

func TestParseReceipt(t *testing.T) {
	cb := STKCallback{
		ResultCode: 0,
		CallbackMetadata: &CallbackMeta{Item: []MetadataItem{
			{Name: "Amount", Value: float64(708)},
			{Name: "MpesaReceiptNumber", Value: "SAF9XK21"},
			{Name: "TransactionDate", Value: float64(20250314092653)},
			{Name: "PhoneNumber", Value: float64(254712345678)},
		}},
	}

	r := cb.ParseReceipt()
	assert.Equal(t, 708.0, r.Amount)
	assert.Equal(t, "SAF9XK21", r.MpesaReceiptNumber)
	assert.Equal(t, "254712345678", r.PhoneNumber)
	assert.Equal(t, time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC), r.TransactionDate)
}

func TestParseReceiptNoMetadata(t *testing.T) {
	cb := STKCallback{ResultCode: 1032, ResultDesc: "Request cancelled by user"}
	r := cb.ParseReceipt()
	assert.Zero(t, r.Amount)
	assert.Empty(t, r.MpesaReceiptNumber)
	assert.True(t, r.TransactionDate.IsZero())
}

func TestCallbackEnvelopeDecoding(t *testing.T) {
	raw := `{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "mr_1",
				"CheckoutRequestID": "ws_CO_1",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 708.00},
						{"Name": "MpesaReceiptNumber", "Value": "SAF9XK21"},
						{"Name": "Balance"},
						{"Name": "TransactionDate", "Value": 20250314092653},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`

	var env CallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	cb := env.Body.STKCallback
	assert.Equal(t, "ws_CO_1", cb.CheckoutRequestID)
	assert.Equal(t, 0, cb.ResultCode)

	r := cb.ParseReceipt()
	assert.Equal(t, 708.0, r.Amount)
	assert.Equal(t, "SAF9XK21", r.MpesaReceiptNumber)
}
