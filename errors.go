package verimail

import "errors"

var (
	// ErrInvalidExistenceOptions is returned when WithExistence is
	// called but HeloDomain or MailFrom is missing. Probes declare a
	// fixed sender identity; there is no safe default for it.
	ErrInvalidExistenceOptions = errors.New("verimail: ExistenceOptions requires HeloDomain and MailFrom")
)
