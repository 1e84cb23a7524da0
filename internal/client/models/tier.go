package models

import "fmt"

// Tier is the account's confidentiality model. It is chosen at signup and
// never changes.
type Tier string

const (
	// TierEndToEnd keeps the private key and content key on the device.
	TierEndToEnd Tier = "e2e"
	// TierUserControlled uploads the password-wrapped master key.
	TierUserControlled Tier = "uce"
)

// ParseTier validates s as a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierEndToEnd, TierUserControlled:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}
