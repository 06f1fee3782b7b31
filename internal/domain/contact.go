package domain

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Contact is a phone/name pair read from the contact source. Phone is the
// platform identity, e.g. 9671111111@c.us.
type Contact struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

func (c Contact) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Phone, validation.Required, validation.Length(1, 64)),
		validation.Field(&c.Name, validation.Length(0, 256)),
	)
	if err != nil {
		return fmt.Errorf("%w: contact: %v", ErrValidation, err)
	}
	return nil
}

// Digits returns the phone without the platform suffix.
func (c Contact) Digits() string {
	phone := strings.TrimSpace(c.Phone)
	if idx := strings.Index(phone, "@"); idx >= 0 {
		return phone[:idx]
	}
	return phone
}
