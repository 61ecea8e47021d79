package domain

// TOTPKey is the key used to generate TOTP codes for a particular user.
type TOTPKey struct {
	// Username is the account the key belongs to.
	Username string
	// Secret is the raw binary key.
	Secret []byte
	// Confirmed is set once the user entered a valid code derived from the
	// key, i.e. the user is enrolled.
	Confirmed bool
}
