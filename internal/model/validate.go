package model

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// Validate checks that the record carries the demographics the
// target requires before any form is submitted for it. An invalid
// record is skipped, not fatal. Only the four required fields are
// checked; anything else is submitted as-is and left to the target
// to accept or reject.
func (r *PatientRecord) Validate() error {
	return validate.Struct(r)
}
