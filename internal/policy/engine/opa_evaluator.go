package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"
)

const registrationQuery = "data.chat.registration.invite_required"

// DefaultRegistrationPolicy requires an invite when the deployment is invite-only, unless the
// email domain is exempt.
const DefaultRegistrationPolicy = `package chat.registration

default invite_required = false

invite_required if {
	input.settings.invite_only
	not exempt
}

exempt if {
	some d in input.settings.exempt_domains
	input.email_domain == d
}
`

// Settings are the deployment settings passed to the policy as input.settings.
type Settings struct {
	InviteOnly    bool
	ExemptDomains []string
}

// OPAEvaluator evaluates the registration policy using OPA Rego. The policy is compiled once at
// construction.
type OPAEvaluator struct {
	settings Settings
	query    rego.PreparedEvalQuery
	logger   *zap.Logger
}

var _ Evaluator = (*OPAEvaluator)(nil)

// NewOPAEvaluator compiles module (DefaultRegistrationPolicy when empty) and returns an evaluator
// bound to settings. A policy that does not compile is a construction error.
func NewOPAEvaluator(ctx context.Context, module string, settings Settings, logger *zap.Logger) (*OPAEvaluator, error) {
	if strings.TrimSpace(module) == "" {
		module = DefaultRegistrationPolicy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	compiler, err := ast.CompileModules(map[string]string{"registration.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile registration policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(registrationQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare registration policy: %w", err)
	}
	return &OPAEvaluator{settings: settings, query: pq, logger: logger}, nil
}

// HealthCheck evaluates the compiled policy against a minimal input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(e.buildInput(RegistrationInput{Email: "health@check.invalid"})))
	if err != nil {
		return fmt.Errorf("eval registration policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// EvaluateRegistration evaluates the registration policy. If evaluation fails or yields no
// boolean, the result falls back to the settings (invite required when invite-only and the
// domain is not exempt) and the error is returned alongside it.
func (e *OPAEvaluator) EvaluateRegistration(ctx context.Context, in RegistrationInput) (RegistrationResult, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(e.buildInput(in)))
	if err != nil {
		e.logger.Warn("policy: registration evaluation failed, using settings", zap.Error(err))
		return e.defaultResult(in), fmt.Errorf("eval registration policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return e.defaultResult(in), fmt.Errorf("policy query returned no result")
	}
	required, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return e.defaultResult(in), fmt.Errorf("policy result is %T, want bool", rs[0].Expressions[0].Value)
	}
	return RegistrationResult{InviteRequired: required}, nil
}

func (e *OPAEvaluator) buildInput(in RegistrationInput) map[string]interface{} {
	exempt := make([]interface{}, 0, len(e.settings.ExemptDomains))
	for _, d := range e.settings.ExemptDomains {
		exempt = append(exempt, strings.ToLower(d))
	}
	return map[string]interface{}{
		"email":           in.Email,
		"email_domain":    emailDomain(in.Email),
		"invite_supplied": in.InviteSupplied,
		"settings": map[string]interface{}{
			"invite_only":    e.settings.InviteOnly,
			"exempt_domains": exempt,
		},
	}
}

func (e *OPAEvaluator) defaultResult(in RegistrationInput) RegistrationResult {
	if !e.settings.InviteOnly {
		return RegistrationResult{}
	}
	domain := emailDomain(in.Email)
	for _, d := range e.settings.ExemptDomains {
		if strings.EqualFold(d, domain) {
			return RegistrationResult{}
		}
	}
	return RegistrationResult{InviteRequired: true}
}

func emailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
