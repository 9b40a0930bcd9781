package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Money amounts have minor unit precision
const moneyPlaces = 2

func configureValidator(validate *validator.Validate) {
	// decimal.Decimal is validated as its string form
	validate.RegisterCustomTypeFunc(decimalToString, decimal.Decimal{})
	_ = validate.RegisterValidation("money", validateMoney)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

func decimalToString(v reflect.Value) any {
	if d, ok := v.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

// Positive amount with at most two decimal places
func validateMoney(fl validator.FieldLevel) bool {
	amount, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}

	return amount.IsPositive() && amount.Equal(amount.Truncate(moneyPlaces))
}
