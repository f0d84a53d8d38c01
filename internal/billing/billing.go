// Package billing holds the pre-invoice helpers: VAT computation, voucher
// type selection from the customer's tax condition, and minimum-data
// validation including the CUIT check digit.
package billing

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rezonia/afip-gateway/internal/afipdec"
	"github.com/rezonia/afip-gateway/internal/model"
)

// Customer tax-condition labels as callers supply them.
const (
	CondRegistered    = "responsable_inscripto"
	CondMonotributo   = "monotributo"
	CondExempt        = "exento"
	CondFinalConsumer = "consumidor_final"
)

// DefaultVATRate is the general VAT rate, in percent.
var DefaultVATRate = decimal.NewFromInt(21)

// Breakdown is the result of a VAT computation, rounded to two decimals.
type Breakdown struct {
	Net   decimal.Decimal `json:"net"`
	VAT   decimal.Decimal `json:"vat"`
	Total decimal.Decimal `json:"total"`
}

// ComputeVAT derives VAT and total from a net amount at the given
// percentage rate.
func ComputeVAT(net, rate decimal.Decimal) Breakdown {
	vat := afipdec.CalculateVAT(net, rate)
	return Breakdown{
		Net:   afipdec.Round(net),
		VAT:   vat,
		Total: afipdec.Round(net.Add(vat)),
	}
}

// ComputeStandardVAT applies the general 21% rate.
func ComputeStandardVAT(net decimal.Decimal) Breakdown {
	return ComputeVAT(net, DefaultVATRate)
}

// SelectVoucherType maps the customer's tax condition to an invoice type.
// Only registered taxpayers get an A invoice; everyone else, including
// unknown conditions, gets the conservative B.
func SelectVoucherType(customerTaxCondition string) int {
	if normalizeCondition(customerTaxCondition) == CondRegistered {
		return model.VoucherInvoiceA
	}
	return model.VoucherInvoiceB
}

// ReceiverCondition maps the customer's tax condition to the wire
// classification code, defaulting to final consumer.
func ReceiverCondition(customerTaxCondition string) int {
	switch normalizeCondition(customerTaxCondition) {
	case CondRegistered:
		return model.TaxConditionRegistered
	case CondMonotributo:
		return model.TaxConditionMonotributo
	case CondExempt:
		return model.TaxConditionExempt
	default:
		return model.TaxConditionFinalConsumer
	}
}

func normalizeCondition(condition string) string {
	c := strings.ToLower(strings.TrimSpace(condition))
	return strings.ReplaceAll(c, " ", "_")
}

// Customer is the minimum receiver data checked before issuing. A supplied
// tax ID must always be a well-formed CUIT; registered taxpayers must
// supply one.
type Customer struct {
	Name         string `json:"name" validate:"required_without=BusinessName"`
	BusinessName string `json:"business_name,omitempty"`
	DocNumber    int64  `json:"doc_number,omitempty" validate:"required_without=TaxID"`
	TaxID        string `json:"tax_id,omitempty" validate:"omitempty,cuit"`
	TaxCondition string `json:"tax_condition,omitempty"`
	Address      string `json:"address,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Tag used on fields that must hold a well-formed CUIT.
	_ = v.RegisterValidation("cuit", func(fl validator.FieldLevel) bool {
		return ValidCUIT(fl.Field().String())
	})
	return v
}

// ValidateMinimumData checks that the customer carries a name or business
// name, a document or tax ID, and, for registered taxpayers, a CUIT with a
// correct check digit. All violations are returned, not just the first.
func ValidateMinimumData(c Customer) []*model.ValidationError {
	var errs []*model.ValidationError

	if err := validate.Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if !errors.As(err, &invalid) {
			errs = append(errs, model.NewValidationError("customer", nil, "struct", err.Error()))
			return errs
		}
		for _, fe := range invalid {
			switch fe.StructField() {
			case "Name":
				errs = append(errs, model.NewValidationError("name", nil, "required",
					"customer needs a name or a business name"))
			case "DocNumber":
				errs = append(errs, model.NewValidationError("doc_number", nil, "required",
					"customer needs a document number or a tax ID"))
			case "TaxID":
				errs = append(errs, model.NewValidationError("tax_id", c.TaxID, "cuit",
					"tax ID is not a syntactically valid CUIT"))
			}
		}
	}

	// The struct tags cannot express this conditional requirement: a
	// registered taxpayer must supply a tax ID at all.
	if normalizeCondition(c.TaxCondition) == CondRegistered && c.TaxID == "" {
		errs = append(errs, model.NewValidationError("tax_id", nil, "required",
			"registered taxpayers need a CUIT"))
	}

	return errs
}

// cuitWeights are the modulo-11 weights over the first ten digits.
var cuitWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// ValidCUIT reports whether the string is an eleven-digit CUIT with a
// correct modulo-11 check digit. Hyphens are tolerated.
func ValidCUIT(cuit string) bool {
	digits := strings.ReplaceAll(cuit, "-", "")
	if len(digits) != 11 {
		return false
	}

	sum := 0
	for i, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
		if i < 10 {
			sum += int(r-'0') * cuitWeights[i]
		}
	}

	check := 11 - sum%11
	switch check {
	case 11:
		check = 0
	case 10:
		check = 9
	}
	return check == int(digits[10]-'0')
}
