// Package types contains the shared types for verimail.
// This package does not import anything from other verimail packages
// to avoid circular imports.
package types

// Stage identifies the verification stage that produced a CheckResult.
type Stage = string

const (
	StageSyntax         Stage = "syntax"
	StageDisposable     Stage = "disposable"
	StageDeliverability Stage = "deliverability"
	StageExistence      Stage = "existence"
)

// Fixed reason strings surfaced to callers. Stages that fail locally
// always use the same reason regardless of input detail.
const (
	ReasonInvalidFormat       = "invalid email format"
	ReasonDisposableDomain    = "temporary/disposable domain"
	ReasonCachedUndeliverable = "cached: domain cannot receive mail"
)

// WarningDeliverabilityOnly is attached to positive results when only
// deliverability was checked: a deliverable domain does not prove that
// the specific mailbox exists.
const WarningDeliverabilityOnly = "validation only confirms the domain can receive mail; it does not verify that the mailbox exists"

// CheckResult is the outcome of a single verification stage.
//
// Definitive is false only for existence probes whose outcome could
// not be determined (dial failure, timeout, protocol error): the
// server's position is unknown and the verdict must not be cached as a
// negative.
type CheckResult struct {
	Stage      Stage  `json:"stage"`
	Passed     bool   `json:"passed"`
	Reason     string `json:"reason,omitempty"`
	Definitive bool   `json:"definitive"`
	Host       string `json:"host,omitempty"`
	Code       int    `json:"code,omitempty"`
}
