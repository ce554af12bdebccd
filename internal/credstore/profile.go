package credstore

import (
	"fmt"
	"strings"
)

// Key names within a customer section. The on-disk representation stores the
// client secret only in encrypted form.
const (
	keyHostBaseURL  = "host_base_url"
	keyOAuthBaseURL = "oauth_base_url"
	keyOAuthScope   = "oauth_scope"
	keyClientID     = "client_id"
	keyClientSecret = "client_secret"
)

// EncryptionSection is the reserved section holding the salt and key check.
// It never appears in ListNames and cannot be used as a customer name.
const EncryptionSection = "encryption"

// CustomerProfile is one customer's transfer-service credentials. The secret
// is held as ciphertext; Store.Secret decrypts it on demand so plaintext
// never sits in a long-lived struct.
type CustomerProfile struct {
	Name                  string
	HostBaseURL           string
	OAuthBaseURL          string
	OAuthScope            string
	ClientID              string
	ClientSecretEncrypted string
}

// MissingFields returns the display names of all required fields that are
// empty, the profile name included. An empty slice means the profile is
// complete and transfer operations may use it.
func (p *CustomerProfile) MissingFields() []string {
	var missing []string

	checks := []struct {
		label string
		value string
	}{
		{"customer name", p.Name},
		{"host base URL", p.HostBaseURL},
		{"OAuth base URL", p.OAuthBaseURL},
		{"OAuth scope", p.OAuthScope},
		{"client ID", p.ClientID},
		{"client secret", p.ClientSecretEncrypted},
	}

	for _, c := range checks {
		if strings.TrimSpace(c.value) == "" {
			missing = append(missing, c.label)
		}
	}

	return missing
}

// Complete reports whether every required field is present.
func (p *CustomerProfile) Complete() bool {
	return len(p.MissingFields()) == 0
}

// ValidationError aggregates every missing field of a profile into one
// error so the caller can report all problems at once instead of the
// first one found.
type ValidationError struct {
	Name    string
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("credstore: profile %q is missing: %s", e.Name, strings.Join(e.Missing, ", "))
}
