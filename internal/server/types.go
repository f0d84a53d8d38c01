package server

import (
	"github.com/rezonia/afip-gateway/internal/model"
)

// IssueResponse is the response for the invoice issuance endpoint
type IssueResponse struct {
	Result *model.InvoiceResult `json:"result"`
}

// NextNumberResponse is the response for the voucher numbering endpoint
type NextNumberResponse struct {
	PointOfSale int   `json:"point_of_sale"`
	VoucherType int   `json:"voucher_type"`
	Next        int64 `json:"next"`
}

// ObservationOutput is one authority observation in an error response
type ObservationOutput struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error        string              `json:"error"`
	Kind         string              `json:"kind,omitempty"`
	Observations []ObservationOutput `json:"observations,omitempty"`
}
