package models

import "time"

// Merchant status values, as stored by the merchant backend.
const (
	MerchantPending  = 0
	MerchantApproved = 1
	MerchantRejected = 2
)

// Merchant is a read-only view of a merchant record. The merchant backend
// owns writes; the relay only resolves recipient identity against it.
type Merchant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"merchant_name"`
	Type      int16     `json:"merchant_type"`
	Status    int16     `json:"status"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"create_time"`
	UpdatedAt time.Time `json:"update_time"`
}
