package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type contactForm struct {
	Email    string `validate:"required,email"`
	Phone    string `validate:"omitempty,phone"`
	Zip      string `validate:"omitempty,zip"`
	Password string `validate:"omitempty,strong_password"`
	Opens    string `validate:"omitempty,clock"`
}

func TestValidateStructFormats(t *testing.T) {
	tests := []struct {
		name  string
		form  contactForm
		field string
	}{
		{"valid", contactForm{Email: "grower@example.com", Phone: "(555) 123-4567", Zip: "97201", Password: "Tomato123", Opens: "08:30"}, ""},
		{"missing email", contactForm{}, "email"},
		{"bad email", contactForm{Email: "grower"}, "email"},
		{"bad phone", contactForm{Email: "a@b.co", Phone: "call me"}, "phone"},
		{"zip plus four", contactForm{Email: "a@b.co", Zip: "97201-1234"}, ""},
		{"bad zip", contactForm{Email: "a@b.co", Zip: "9720"}, "zip"},
		{"weak password", contactForm{Email: "a@b.co", Password: "tomatoes"}, "password"},
		{"bad clock", contactForm{Email: "a@b.co", Opens: "25:00"}, "opens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := GetValidationErrors(ValidateStruct(&tt.form))
			if tt.field == "" {
				assert.Empty(t, errs)
				return
			}
			if assert.Len(t, errs, 1) {
				assert.Equal(t, tt.field, errs[0].Field)
				assert.NotEmpty(t, errs[0].Message)
			}
		})
	}
}

func TestGetValidationErrorsUnwraps(t *testing.T) {
	err := fmt.Errorf("validation failed: %w", ValidateStruct(&contactForm{}))
	errs := GetValidationErrors(err)
	assert.Len(t, errs, 1)
	assert.Equal(t, "required", errs[0].Tag)
}

func TestMoneyHelpers(t *testing.T) {
	assert.Equal(t, int64(1999), ToCents(19.99))
	assert.Equal(t, int64(30), ToCents(0.1+0.2))
	assert.Equal(t, 0.6, PercentOf(20, 3))
	assert.Equal(t, 12.35, RoundMoney(12.345000001))
	assert.Equal(t, 4.5, FromCents(450))
}
