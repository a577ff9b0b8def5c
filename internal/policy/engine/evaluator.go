package engine

import "context"

// RegistrationInput is the data a registration policy decides on.
type RegistrationInput struct {
	// Email is the normalized email of the registering principal.
	Email string
	// InviteSupplied reports whether the request carried an invite token.
	InviteSupplied bool
}

// RegistrationResult holds the result of registration policy evaluation.
type RegistrationResult struct {
	InviteRequired bool
}

// Evaluator evaluates registration policy using OPA or other engines.
type Evaluator interface {
	// EvaluateRegistration decides whether a registration must redeem an invite.
	EvaluateRegistration(ctx context.Context, in RegistrationInput) (RegistrationResult, error)
}
