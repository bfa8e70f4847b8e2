package core

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z]{1}[1-9A-Z]{1}Z[0-9A-Z]{1}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("gstin", func(fl validator.FieldLevel) bool {
		return gstinPattern.MatchString(fl.Field().String())
	})
	return v
}

// structErr converts the first validator failure into a ValidationError.
func structErr(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &ValidationError{
		Field:   fieldName(fe.Field()),
		Message: tagMessage(fe),
		Err:     fe,
	}
}

func fieldName(goName string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range goName {
		upper := r >= 'A' && r <= 'Z'
		if upper && prevLower {
			b.WriteByte('_')
		}
		prevLower = !upper
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "is not a valid email address"
	case "max":
		return "is too long (max " + fe.Param() + " characters)"
	case "len":
		return "must be " + fe.Param() + " characters"
	case "hexcolor":
		return "must be a hex color"
	case "gstin":
		return "is not a valid GSTIN"
	}
	return "is invalid"
}

func (e Expense) Validate() error {
	if err := structErr(e); err != nil {
		return err
	}
	if strings.TrimSpace(e.Description) == "" {
		return Invalid("description", ErrEmptyDescription)
	}
	if e.Amount.IsNegative() {
		return Invalid("amount", ErrInvalidAmount)
	}
	if !e.Date.Valid() {
		return Invalid("date", ErrInvalidDate)
	}
	if e.PaymentMethod != "" && !e.PaymentMethod.Valid() {
		return Invalid("payment_method", ErrInvalidPayment)
	}
	return nil
}

func (c Category) Validate() error {
	return structErr(c)
}

func (c Client) Validate() error {
	return structErr(c)
}

func (s Settings) Validate() error {
	if err := structErr(s); err != nil {
		return err
	}
	if s.TaxRate.IsNegative() || s.TaxRate.GreaterThan(decimal.NewFromInt(100)) {
		return Invalid("tax_rate", ErrInvalidTaxRate)
	}
	if s.ProfileGSTIN != "" && validate.Var(s.ProfileGSTIN, "gstin") != nil {
		return &ValidationError{Field: "profile_gstin", Message: "is not a valid GSTIN"}
	}
	return nil
}

func (i Invoice) Validate() error {
	if err := structErr(i); err != nil {
		return err
	}
	if !i.Status.Valid() {
		return Invalid("status", ErrInvalidStatus)
	}
	if len(i.Items) == 0 {
		return Invalid("items", ErrNoLineItems)
	}
	if !i.DateIssued.Valid() {
		return Invalid("date_issued", ErrInvalidDate)
	}
	if i.DueDate != "" && !i.DueDate.Valid() {
		return Invalid("due_date", ErrInvalidDate)
	}
	for _, it := range i.Items {
		if strings.TrimSpace(it.Description) == "" {
			return Invalid("items", ErrEmptyDescription)
		}
		if it.Quantity.IsNegative() || it.Rate.IsNegative() {
			return Invalid("items", ErrInvalidAmount)
		}
	}
	return nil
}
