package domain

import "strings"

type ShippingProfile struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	ShippingAddress string `json:"shipping_address"`
}

// Normalize trims surrounding whitespace from every field.
func (p ShippingProfile) Normalize() ShippingProfile {
	return ShippingProfile{
		Name:            strings.TrimSpace(p.Name),
		Email:           strings.TrimSpace(p.Email),
		ShippingAddress: strings.TrimSpace(p.ShippingAddress),
	}
}

// Validate reports the fields that are empty once trimmed.
func (p ShippingProfile) Validate() error {
	n := p.Normalize()
	var missing []string
	if n.Name == "" {
		missing = append(missing, "name")
	}
	if n.Email == "" {
		missing = append(missing, "email")
	}
	if n.ShippingAddress == "" {
		missing = append(missing, "shipping_address")
	}
	if len(missing) > 0 {
		return &IncompleteProfileError{Missing: missing}
	}
	return nil
}
