package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Environment selects which AFIP installation a call targets.
type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// Valid reports whether the environment is one of the known installations.
func (e Environment) Valid() bool {
	return e == EnvironmentSandbox || e == EnvironmentProduction
}

// Voucher type codes as registered with AFIP (FEParamGetTiposCbte).
const (
	VoucherInvoiceA    = 1
	VoucherDebitNoteA  = 2
	VoucherCreditNoteA = 3
	VoucherInvoiceB    = 6
	VoucherDebitNoteB  = 7
	VoucherCreditNoteB = 8
	VoucherInvoiceC    = 11
	VoucherDebitNoteC  = 12
	VoucherCreditNoteC = 13
)

// Receiver document type codes (FEParamGetTiposDoc).
const (
	DocTypeCUIT          = 80
	DocTypeCUIL          = 86
	DocTypeDNI           = 96
	DocTypeFinalConsumer = 99
)

// Concept codes for the invoiced activity.
const (
	ConceptProducts            = 1
	ConceptServices            = 2
	ConceptProductsAndServices = 3
)

// Receiver VAT-condition classification (CondicionIVAReceptorId).
// AFIP accepts values in [1,7] for the voucher types that require it.
const (
	TaxConditionRegistered    = 1 // IVA responsable inscripto
	TaxConditionExempt        = 4 // IVA sujeto exento
	TaxConditionFinalConsumer = 5 // consumidor final
	TaxConditionMonotributo   = 6 // responsable monotributo
)

// IsExemptFamily reports whether the voucher type belongs to the "C" family,
// issued by exempt/monotributo taxpayers. These vouchers never carry VAT.
func IsExemptFamily(voucherType int) bool {
	switch voucherType {
	case VoucherInvoiceC, VoucherDebitNoteC, VoucherCreditNoteC:
		return true
	}
	return false
}

// IsCreditNote reports whether the voucher type is a credit note.
func IsCreditNote(voucherType int) bool {
	switch voucherType {
	case VoucherCreditNoteA, VoucherCreditNoteB, VoucherCreditNoteC:
		return true
	}
	return false
}

// RequiresReceiverTaxCondition reports whether AFIP demands the receiver
// VAT-condition classification for the voucher type. B and C families (and
// their note variants) require it; the A family does not.
func RequiresReceiverTaxCondition(voucherType int) bool {
	switch voucherType {
	case VoucherInvoiceB, VoucherDebitNoteB, VoucherCreditNoteB,
		VoucherInvoiceC, VoucherDebitNoteC, VoucherCreditNoteC:
		return true
	}
	return false
}

// CreditNoteFor returns the credit note type matching the family of the
// given voucher type, or 0 when the type has no credit-note counterpart.
func CreditNoteFor(voucherType int) int {
	switch voucherType {
	case VoucherInvoiceA, VoucherDebitNoteA:
		return VoucherCreditNoteA
	case VoucherInvoiceB, VoucherDebitNoteB:
		return VoucherCreditNoteB
	case VoucherInvoiceC, VoucherDebitNoteC:
		return VoucherCreditNoteC
	}
	return 0
}

// SigningIdentity is the resolved certificate material and taxpayer identity
// for one call. It is rebuilt per call and never persisted.
type SigningIdentity struct {
	// Ref identifies the identity in configuration ("default" or a tenant id).
	Ref string
	// CertPEM and KeyPEM hold the PEM-encoded certificate and private key.
	CertPEM []byte
	KeyPEM  []byte
	// TaxID is the issuer CUIT, digits only.
	TaxID string
	// PointOfSale is the issuing channel registered with AFIP.
	PointOfSale int
	Environment Environment
}

// LineItem is one invoiced concept.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VATRate     decimal.Decimal `json:"vat_rate"`
}

// AssociatedVoucher references an original voucher from a credit/debit note.
type AssociatedVoucher struct {
	Type        int   `json:"type"`
	PointOfSale int   `json:"point_of_sale"`
	Number      int64 `json:"number"`
}

// InvoiceRequest is the caller-supplied description of one voucher to
// authorize. Amounts already include the caller's computation; the
// authorization client re-derives totals and VAT before the wire.
type InvoiceRequest struct {
	VoucherType int `json:"voucher_type"`
	Concept     int `json:"concept"`

	DocType   int   `json:"doc_type"`
	DocNumber int64 `json:"doc_number"`

	CustomerName         string `json:"customer_name,omitempty"`
	CustomerAddress      string `json:"customer_address,omitempty"`
	CustomerTaxCondition string `json:"customer_tax_condition,omitempty"`

	// ReceiverTaxCondition is the CondicionIVAReceptorId classification,
	// mandatory for B and C family vouchers. Zero means unset.
	ReceiverTaxCondition int `json:"receiver_tax_condition,omitempty"`

	Currency string `json:"currency,omitempty"`

	Items []LineItem `json:"items,omitempty"`

	Net        decimal.Decimal `json:"net"`
	VAT        decimal.Decimal `json:"vat"`
	Total      decimal.Decimal `json:"total"`
	Exempt     decimal.Decimal `json:"exempt"`
	Untaxed    decimal.Decimal `json:"untaxed"`
	OtherTaxes decimal.Decimal `json:"other_taxes"`

	// Service period, required when Concept indicates services.
	ServiceFrom *time.Time `json:"service_from,omitempty"`
	ServiceTo   *time.Time `json:"service_to,omitempty"`
	PaymentDue  *time.Time `json:"payment_due,omitempty"`

	AssociatedVouchers []AssociatedVoucher `json:"associated_vouchers,omitempty"`

	Reference string `json:"reference,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// InvoiceResult is returned only when AFIP accepts the voucher.
type InvoiceResult struct {
	CAE           string    `json:"cae"`
	CAEExpiration time.Time `json:"cae_expiration"`
	Number        int64     `json:"number"`
	PointOfSale   int       `json:"point_of_sale"`
	VoucherType   int       `json:"voucher_type"`
	IssueDate     time.Time `json:"issue_date"`
	// DryRun marks results synthesized without contacting AFIP.
	DryRun bool `json:"dry_run,omitempty"`
}
