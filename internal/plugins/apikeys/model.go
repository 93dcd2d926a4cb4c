// Package apikeys manages partner API keypairs: RSA public keys registered
// by an account under a key id (kid) that signed assertions are later
// verified against during the JWT exchange.
package apikeys

import "time"

// Keypair states. Only active keypairs participate in the exchange.
const (
	StateActive   = "active"
	StateDisabled = "disabled"
)

// Lifetime bounds, in seconds, for session tokens minted through a keypair.
const (
	MinLifetime = 10
	MaxLifetime = 7200
)

// Keypair is a partner-registered RSA public key. The private half never
// touches the server: partners sign assertions locally and submit them to
// the exchange endpoint.
type Keypair struct {
	ID        int64  `json:"-"`
	UID       string `json:"uid"`
	AccountID int64  `json:"-"`

	// Name labels the keypair. Lowercase letters, digits, underscore and
	// hyphen, 3 to 50 characters.
	Name string `json:"name"`

	// PublicKey is the PEM-encoded RSA public key.
	PublicKey string `json:"public_key"`

	// Scopes is a space separated scope list carried into minted tokens.
	Scopes string `json:"scopes"`

	// Lifetime is how many seconds each minted session token lives,
	// between MinLifetime and MaxLifetime.
	Lifetime int `json:"lifetime"`

	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the keypair may be used for exchanges.
func (k *Keypair) Active() bool {
	return k.State == StateActive
}

// CreateRequest is the payload for registering a keypair.
type CreateRequest struct {
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
	Scopes    string `json:"scopes"`
	Lifetime  int    `json:"lifetime"`
}

// UpdateRequest is the payload for modifying a keypair. The public key is
// immutable; partners rotate by creating a new keypair.
type UpdateRequest struct {
	Name     string `json:"name"`
	Scopes   string `json:"scopes"`
	Lifetime int    `json:"lifetime"`
	State    string `json:"state"`
}
