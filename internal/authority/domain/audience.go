package domain

import "time"

// AudienceKind is a closed tag naming the intended consumer/purpose of a
// token and the lifetime tokens of that purpose get. The set is fixed at
// compile time; kinds cannot be constructed outside this package, so an
// unknown audience can never reach the stores.
type AudienceKind struct {
	name     string
	lifetime time.Duration
	oneTime  bool
}

var (
	// AudAccess is the short-lived access token audience.
	AudAccess = AudienceKind{name: "api", lifetime: 15 * time.Minute}

	// AudSession is the long-lived refresh token audience backing sessions.
	AudSession = AudienceKind{name: "session", lifetime: 7 * 24 * time.Hour}

	// AudLostPassword is the single-use token mailed out on a reset request.
	AudLostPassword = AudienceKind{name: "lost-password", lifetime: 30 * time.Minute, oneTime: true}

	// AudChangePassword is the single-use token a redeemed lost-password
	// token is chained into. Only this kind authorizes the actual change.
	AudChangePassword = AudienceKind{name: "change-password", lifetime: 15 * time.Minute, oneTime: true}
)

// Name returns the audience string embedded in and required of claims.
func (k AudienceKind) Name() string { return k.name }

// Lifetime returns how long tokens of this kind live.
func (k AudienceKind) Lifetime() time.Duration { return k.lifetime }

// OneTime reports whether tokens of this kind are consumed on redemption.
func (k AudienceKind) OneTime() bool { return k.oneTime }

// WithLifetime returns a copy of the kind with an overridden lifetime. The
// name and one-time flag are preserved so the namespace stays closed.
func (k AudienceKind) WithLifetime(d time.Duration) AudienceKind {
	k.lifetime = d
	return k
}
