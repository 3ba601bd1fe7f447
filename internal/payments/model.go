package payments

import (
	"errors"
	"fmt"
	"time"
)

// Method enumerates how a payment was taken.
type Method string

// Card and split are recorded tender types without a processing path
// of their own; only cash and M-Pesa have dedicated flows.
const (
	MethodCash  Method = "cash"
	MethodMpesa Method = "mpesa"
	MethodCard  Method = "card"
	MethodSplit Method = "split"
)

// ParseMethod validates a raw method string.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodCash, MethodMpesa, MethodCard, MethodSplit:
		return Method(s), nil
	}
	return "", fmt.Errorf("payments: unknown method %q", s)
}

// Status enumerates the payment lifecycle. Cash payments are born
// completed; M-Pesa payments start pending and settle via callback.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {StatusRefunded},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusRefunded:  {},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound indicates a missing payment.
	ErrNotFound = errors.New("payment not found")
	// ErrOrderNotPayable indicates the order is not pending, so no
	// further payments may be taken against it.
	ErrOrderNotPayable = errors.New("order is not payable")
	// ErrAlreadySettled indicates a payment that has already left the
	// pending state; settling it again is a no-op for callbacks and an
	// error for operators.
	ErrAlreadySettled = errors.New("payment already settled")
	// ErrPushRejected indicates Daraja refused to queue the STK push.
	ErrPushRejected = errors.New("stk push rejected")
)

// Payment is one tender against an order. Amount is what counts
// toward settling the order; for cash, AmountTendered and
// ChangeAmount record the physical exchange.
type Payment struct {
	ID                 int64      `json:"id"`
	OrderID            int64      `json:"order_id"`
	Method             Method     `json:"method"`
	Status             Status     `json:"status"`
	Amount             float64    `json:"amount"`
	AmountTendered     float64    `json:"amount_tendered,omitempty"`
	ChangeAmount       float64    `json:"change_amount"`
	PhoneNumber        string     `json:"phone_number,omitempty"`
	MpesaReceiptNumber string     `json:"mpesa_receipt_number,omitempty"`
	CheckoutRequestID  string     `json:"checkout_request_id,omitempty"`
	MerchantRequestID  string     `json:"merchant_request_id,omitempty"`
	ResultDescription  string     `json:"result_description,omitempty"`
	TransactionDate    *time.Time `json:"transaction_date,omitempty"`
	CreatedBy          int64      `json:"created_by"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// CashPaymentRequest tenders cash against an order.
type CashPaymentRequest struct {
	OrderID        int64   `json:"order_id" validate:"required,gt=0"`
	AmountTendered float64 `json:"amount_tendered" validate:"required,gt=0"`
}

// STKPushRequest starts an M-Pesa payment for an order.
type STKPushRequest struct {
	OrderID     int64  `json:"order_id" validate:"required,gt=0"`
	PhoneNumber string `json:"phone_number" validate:"required,min=9,max=15"`
}

// CashResult reports what happened at the till.
type CashResult struct {
	Payment        *Payment `json:"payment"`
	ChangeDue      float64  `json:"change_due"`
	OrderCompleted bool     `json:"order_completed"`
	Outstanding    float64  `json:"outstanding"`
}
