package customers

import "time"

// Customer is a loyalty-tracked buyer. Orders reference customers
// optionally and survive their deletion.
type Customer struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Phone         *string   `json:"phone,omitempty"`
	Email         *string   `json:"email,omitempty"`
	LoyaltyPoints int       `json:"loyalty_points"`
	CreatedAt     time.Time `json:"created_at"`
}

type CreateCustomerRequest struct {
	Name  string  `json:"name" validate:"required,max=200"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
}

// AdjustLoyaltyRequest corrects a customer's points balance by a
// signed delta.
type AdjustLoyaltyRequest struct {
	Delta int `json:"delta" validate:"required"`
}

type ListCustomersRequest struct {
	Search string
	Phone  string
	Limit  int
	Offset int
}
