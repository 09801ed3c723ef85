package provider

// APIVersion is the generation of the provider API a message id comes from
type APIVersion string

const (
	APIVersionNew    APIVersion = "new"
	APIVersionLegacy APIVersion = "legacy"
)

// Ids of the previous API generation are always 25 characters long.
const legacyIDLength = 25

// GuessAPIVersion tells legacy message ids apart from current ones
func GuessAPIVersion(uid string) APIVersion {
	if len(uid) == legacyIDLength {
		return APIVersionLegacy
	}
	return APIVersionNew
}
