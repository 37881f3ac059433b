package state

import "cmp"

// WindowKey identifies a window. Party is empty for the server window of a
// profile, a channel name, or a nickname for private messages.
type WindowKey struct {
	Profile string
	Party   string
}

// Key builds a WindowKey.
func Key(profile, party string) WindowKey {
	return WindowKey{Profile: profile, Party: party}
}

// Compare orders keys by profile, then party.
func (k WindowKey) Compare(other WindowKey) int {
	if c := cmp.Compare(k.Profile, other.Profile); c != 0 {
		return c
	}
	return cmp.Compare(k.Party, other.Party)
}

// IsServer reports whether the key names a profile's server window.
func (k WindowKey) IsServer() bool {
	return k.Party == ""
}

func (k WindowKey) String() string {
	if k.Party == "" {
		return k.Profile
	}
	return k.Profile + "/" + k.Party
}
