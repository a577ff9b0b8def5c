package telemetry

import "time"

// Auth lifecycle event types.
const (
	EventTokenIssued             = "token_issued"
	EventTokenRefreshed          = "token_refreshed"
	EventTokenRevoked            = "token_revoked"
	EventLinkCreated             = "login_link_created"
	EventLinkConsumed            = "login_link_consumed"
	EventInviteCreated           = "invite_created"
	EventInviteRedeemed          = "invite_redeemed"
	EventInviteRolledBack        = "invite_rolled_back"
	EventRegistered              = "registered"
	EventRegistrationCompensated = "registration_compensated"
	EventRegistrationUnresolved  = "registration_unresolved"
	EventLoginSuccess            = "login_success"
	EventLoginFailure            = "login_failure"
	EventLogout                  = "logout"
)

// AuthEvent is one credential lifecycle event. It never carries raw tokens or secrets; TokenID
// is a jti or a token fingerprint.
type AuthEvent struct {
	Type      string
	UserID    string
	DeviceID  string
	TokenID   string
	ClientIP  string
	Reason    string
	CreatedAt time.Time
}
