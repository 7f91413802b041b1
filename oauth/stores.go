package oauth

// AttemptStore holds the single in-flight authorization attempt.
// Implementations must be safe for concurrent use. A persisted
// implementation lets a callback arriving into a fresh process validate
// against the attempt that started in the previous one.
type AttemptStore interface {
	// Begin creates a new attempt, replacing and invalidating any prior
	// unconsumed one, persists it, and returns it.
	Begin() (*Attempt, error)

	// Current returns the in-flight attempt, or nil when there is none.
	Current() (*Attempt, error)

	// Clear removes the attempt.
	Clear() error
}

// TokenStore owns persistence of the Token and the cached Profile.
// Implementations must be safe for concurrent use, must persist encrypted at
// rest, and must write a Token's fields as one atomic operation so a crash
// can never leave a token without its expiry.
type TokenStore interface {
	// Save persists the token as a single atomic write, preserving any
	// cached profile.
	Save(t *Token) error

	// Load returns the persisted token, or nil when there is none.
	Load() (*Token, error)

	// SaveProfile persists the user profile alongside the token.
	SaveProfile(p *Profile) error

	// LoadProfile returns the cached profile, or nil when there is none.
	LoadProfile() (*Profile, error)

	// Valid reports whether a persisted token exists and is currently
	// valid.
	Valid() bool

	// Clear removes the token and profile together.
	Clear() error
}
