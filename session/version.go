package session

import "golang.org/x/mod/semver"

// CheckClientVersion compares a client's advertised version against
// EngineVersion: major-version mismatch is incompatible, anything else is
// accepted. clientVersion must be a semver string ("v1.2.3"); a malformed
// string is treated as incompatible rather than panicking semver.Compare.
func CheckClientVersion(clientVersion string) (compatible bool, reason string) {
	if !semver.IsValid(clientVersion) {
		return false, "client version " + clientVersion + " is not a valid semver string"
	}
	if semver.Major(clientVersion) != semver.Major(EngineVersion) {
		return false, "client " + clientVersion + " and engine " + EngineVersion + " major versions differ"
	}
	return true, ""
}
