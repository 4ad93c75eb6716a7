/**
 * @description
 * This file defines the donation-side domain models: the ephemeral
 * DonationOrder created before the donor is handed to the payment gateway,
 * and the Donation ledger entry written exactly once per verified payment.
 *
 * @notes
 * - Donation is append-only and immutable once written. Its
 *   GatewayPaymentReference is the idempotency key: the store enforces a
 *   uniqueness constraint on it so a replayed verification can never credit
 *   a project twice.
 * - DonationOrder is advisory bookkeeping only; the committed Donation is
 *   authoritative for money. Abandoned orders are expected, not an error.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// DonationOrder states.
const (
	OrderStatusCreated  = "created"
	OrderStatusConsumed = "consumed"
)

// DonationOrder is a donor's stated intent, correlated with a gateway-side
// order reference. It carries no ledger weight.
type DonationOrder struct {
	ID                    uuid.UUID `json:"id"`
	ProjectID             uuid.UUID `json:"project_id"`
	DonorName             string    `json:"donor_name"`
	DonorEmail            string    `json:"donor_email"`
	Amount                int64     `json:"amount"` // in paise
	Message               *string   `json:"message,omitempty"`
	GatewayOrderReference string    `json:"gateway_order_reference"`
	Status                string    `json:"status"`
	CreatedAt             time.Time `json:"created_at"`
}

// Donation is the immutable ledger entry for one verified payment.
type Donation struct {
	ID                      uuid.UUID `json:"id"`
	ProjectID               uuid.UUID `json:"project_id"`
	DonorName               string    `json:"donor_name"`
	DonorEmail              string    `json:"donor_email"`
	Amount                  int64     `json:"amount"` // in paise
	Message                 *string   `json:"message,omitempty"`
	GatewayPaymentReference string    `json:"gateway_payment_reference"`
	GatewayOrderReference   string    `json:"gateway_order_reference"`
	VerifiedAt              time.Time `json:"verified_at"`
}

// CreateOrderRequest is the DTO for POST /donations/order. Amount is in rupees.
type CreateOrderRequest struct {
	ProjectID  string  `json:"project_id"`
	Amount     float64 `json:"amount"`
	DonorName  string  `json:"donor_name"`
	DonorEmail string  `json:"donor_email"`
	Message    *string `json:"message,omitempty"`
}

// ClaimedDonation is the donation detail echoed back by the client during
// verification. It is cross-checked against the gateway's captured payment and
// never trusted on its own.
type ClaimedDonation struct {
	ProjectID  string  `json:"project_id"`
	Amount     float64 `json:"amount"` // in rupees
	DonorName  string  `json:"donor_name"`
	DonorEmail string  `json:"donor_email"`
	Message    *string `json:"message,omitempty"`
}

// VerifyDonationRequest is the DTO for POST /donations/verify.
type VerifyDonationRequest struct {
	GatewayPaymentReference string          `json:"gateway_payment_reference"`
	GatewayOrderReference   string          `json:"gateway_order_reference"`
	Signature               string          `json:"signature"`
	Donation                ClaimedDonation `json:"donation"`
}
