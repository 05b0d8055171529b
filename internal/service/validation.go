package service

import (
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// registerScaleValidation adds the `maxscale=N` tag, which rejects floats carrying more
// than N fractional digits. Credits are stored as NUMERIC(4,1) and grade points as NUMERIC(3,2).
func registerScaleValidation(validate *validator.Validate) {
	validate.RegisterValidation("maxscale", func(fl validator.FieldLevel) bool {
		places, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			return withinScale(fl.Field().Float(), places)
		default:
			return false
		}
	})
}

func withinScale(v float64, places int) bool {
	d := decimal.NewFromFloat(v)
	return d.Equal(d.Truncate(int32(places)))
}
