package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the auth metrics.
const MeterName = "chat-credential-engine/auth"

// Metrics holds the auth counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	tokensIssued      metric.Int64Counter
	validations       metric.Int64Counter
	refreshes         metric.Int64Counter
	revocations       metric.Int64Counter
	linksCreated      metric.Int64Counter
	linkConsumptions  metric.Int64Counter
	invitesCreated    metric.Int64Counter
	inviteRedemptions metric.Int64Counter
}

// NewMetrics creates the auth counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.tokensIssued, "auth.tokens.issued", "Session token pairs issued."},
		{&m.validations, "auth.tokens.validations", "Session token validations by outcome."},
		{&m.refreshes, "auth.tokens.refreshes", "Refresh attempts by outcome."},
		{&m.revocations, "auth.tokens.revocations", "Tokens added to the revocation store."},
		{&m.linksCreated, "auth.links.created", "Login links created."},
		{&m.linkConsumptions, "auth.links.consumptions", "Login link consumption attempts by outcome."},
		{&m.invitesCreated, "auth.invites.created", "Invites generated."},
		{&m.inviteRedemptions, "auth.invites.redemptions", "Invite redemption attempts by outcome."},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func add(ctx context.Context, c metric.Int64Counter, outcome string) {
	if c == nil {
		return
	}
	if outcome == "" {
		c.Add(ctx, 1)
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) TokenIssued(ctx context.Context) {
	if m != nil {
		add(ctx, m.tokensIssued, "")
	}
}

// Validation records a validation result; outcome is "valid" or the rejection reason.
func (m *Metrics) Validation(ctx context.Context, outcome string) {
	if m != nil {
		add(ctx, m.validations, outcome)
	}
}

func (m *Metrics) Refresh(ctx context.Context, outcome string) {
	if m != nil {
		add(ctx, m.refreshes, outcome)
	}
}

func (m *Metrics) Revocation(ctx context.Context) {
	if m != nil {
		add(ctx, m.revocations, "")
	}
}

func (m *Metrics) LinkCreated(ctx context.Context) {
	if m != nil {
		add(ctx, m.linksCreated, "")
	}
}

func (m *Metrics) LinkConsumption(ctx context.Context, outcome string) {
	if m != nil {
		add(ctx, m.linkConsumptions, outcome)
	}
}

func (m *Metrics) InviteCreated(ctx context.Context) {
	if m != nil {
		add(ctx, m.invitesCreated, "")
	}
}

func (m *Metrics) InviteRedemption(ctx context.Context, outcome string) {
	if m != nil {
		add(ctx, m.inviteRedemptions, outcome)
	}
}
