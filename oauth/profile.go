package oauth

// Profile is the signed-in user's profile as returned by the provider's
// userinfo endpoint. It is cached alongside the tokens and overwritten on
// every successful fetch.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}
