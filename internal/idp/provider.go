package idp

// AuthType identifies the identity provider that authenticated a user
type AuthType string

// AuthTypeGoogle is the only provider this service federates with
const AuthTypeGoogle AuthType = "google"

// Profile is the normalized user profile returned by the provider.
// Email is the stable identity key; Name may change between logins.
type Profile struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	AuthType AuthType `json:"auth_type"`
}
