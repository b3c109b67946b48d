package verimail

// Result is the outcome of verifying one submitted address.
// Value carries the normalized address when Valid, otherwise the
// human-readable failure reason. Warning is populated only when
// deliverability alone was checked: a deliverable domain does not
// prove that the mailbox exists.
type Result struct {
	Email   string `json:"email"`
	Valid   bool   `json:"valid"`
	Value   string `json:"result"`
	Warning string `json:"warning,omitempty"`
}

func validResult(email, normalized, warning string) Result {
	return Result{Email: email, Valid: true, Value: normalized, Warning: warning}
}

func invalidResult(email, reason string) Result {
	return Result{Email: email, Valid: false, Value: reason}
}
