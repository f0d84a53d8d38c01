package wsfe

import (
	"github.com/shopspring/decimal"

	"github.com/rezonia/afip-gateway/internal/afipdec"
	"github.com/rezonia/afip-gateway/internal/model"
)

// totalTolerance is how far a caller-supplied total may stray from the
// recomputed one before it is discarded.
var totalTolerance = afipdec.MustFromString("0.01")

// rateTolerance matches the derived VAT percentage to a known bucket,
// in percentage points.
var rateTolerance = afipdec.MustFromString("0.1")

// currencyPeso is the only supported currency; its exchange rate is
// fixed at 1.
const currencyPeso = "PES"

// vatBuckets maps the supported VAT percentages to wire identifiers.
var vatBuckets = []struct {
	percent decimal.Decimal
	id      int
}{
	{afipdec.MustFromString("21"), RateID21},
	{afipdec.MustFromString("10.5"), RateID10_5},
	{afipdec.MustFromString("27"), RateID27},
}

// Normalize enforces every pre-submission business rule, VAT rate
// classification included, and returns the normalized request. Callers run
// it before acquiring a ticket or a number, so an invalid request never
// costs a network call anywhere in the pipeline.
func Normalize(req model.InvoiceRequest) (model.InvoiceRequest, error) {
	normalized, err := normalizeRequest(req)
	if err != nil {
		return req, err
	}
	if _, err := vatLines(&normalized); err != nil {
		return req, err
	}
	return normalized, nil
}

// normalizeRequest enforces the tax-regime rules on a copy of the request
// and returns it. Every rule runs before any network call; a rule violation
// is a ValidationError and the request never leaves the process.
func normalizeRequest(req model.InvoiceRequest) (model.InvoiceRequest, error) {
	if err := validateRequest(&req); err != nil {
		return req, err
	}

	// Exempt-regime normalization: C-family vouchers never carry VAT,
	// whatever the caller computed.
	if model.IsExemptFamily(req.VoucherType) {
		req.VAT = afipdec.Zero
		req.Total = afipdec.Round(req.Net.Add(req.OtherTaxes).Add(req.Exempt).Add(req.Untaxed))
	}

	// Total consistency: the recomputed sum wins when the caller's total
	// strays beyond tolerance.
	recomputed := afipdec.Round(req.Net.Add(req.VAT).Add(req.Exempt).Add(req.OtherTaxes).Add(req.Untaxed))
	if !afipdec.WithinTolerance(req.Total, recomputed, totalTolerance) {
		req.Total = recomputed
	}

	// Document-type fallback: a B voucher with no document number is a
	// final-consumer sale.
	if req.VoucherType == model.VoucherInvoiceB && req.DocNumber == 0 && req.DocType != model.DocTypeFinalConsumer {
		req.DocType = model.DocTypeFinalConsumer
		req.DocNumber = 0
	}

	if req.Currency == "" {
		req.Currency = currencyPeso
	}

	return req, nil
}

func validateRequest(req *model.InvoiceRequest) error {
	if req.VoucherType <= 0 {
		return model.NewValidationError("voucher_type", req.VoucherType, "required", "missing voucher type")
	}
	if req.Concept < model.ConceptProducts || req.Concept > model.ConceptProductsAndServices {
		return model.NewValidationError("concept", req.Concept, "range", "must be 1 (products), 2 (services) or 3 (both)")
	}
	if req.Net.IsNegative() {
		return model.NewValidationError("net", req.Net.String(), "non-negative", "net amount cannot be negative")
	}
	if req.Currency != "" && req.Currency != currencyPeso {
		return model.NewValidationError("currency", req.Currency, "unsupported",
			"only PES is supported; its exchange rate is fixed at 1")
	}

	// Receiver tax-condition requirement: B and C families must classify
	// the buyer; the valid wire range is [1,7].
	if model.RequiresReceiverTaxCondition(req.VoucherType) {
		if req.ReceiverTaxCondition < 1 || req.ReceiverTaxCondition > 7 {
			return model.NewValidationError("receiver_tax_condition", req.ReceiverTaxCondition,
				"range", "voucher type requires a receiver tax condition between 1 and 7")
		}
	}

	return nil
}

// vatLines classifies the request's VAT into rate buckets for the wire
// format. Returns nil when VAT is zero: the Iva section is omitted entirely.
// The whole net is reported under the single derived rate, matching how the
// caller computes invoices with one rate across all items.
func vatLines(req *model.InvoiceRequest) (*AlicIvaList, error) {
	if req.VAT.IsZero() {
		return nil, nil
	}

	rate := afipdec.RatePercent(req.VAT, req.Net)
	for _, bucket := range vatBuckets {
		if afipdec.WithinTolerance(rate, bucket.percent, rateTolerance) {
			return &AlicIvaList{Entries: []AlicIva{{
				ID:      bucket.id,
				BaseImp: req.Net.StringFixed(2),
				Importe: req.VAT.StringFixed(2),
			}}}, nil
		}
	}

	return nil, model.NewValidationError("vat", rate.StringFixed(2),
		"rate", "effective VAT rate matches no supported bucket (21, 10.5, 27)")
}

// associatedVouchers maps the request references to the wire list, or nil
// when there are none.
func associatedVouchers(req *model.InvoiceRequest) *CbtesAsocList {
	if len(req.AssociatedVouchers) == 0 {
		return nil
	}
	entries := make([]CbteAsoc, len(req.AssociatedVouchers))
	for i, av := range req.AssociatedVouchers {
		entries[i] = CbteAsoc{Tipo: av.Type, PtoVta: av.PointOfSale, Nro: av.Number}
	}
	return &CbtesAsocList{Entries: entries}
}
