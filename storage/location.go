package storage

import "strings"

// remotePrefix marks object-storage keys inside a serialized Location. The
// encoding is stable: call records persist the string form and both the
// ingestion and retrieval paths (plus export tooling) parse it back.
const remotePrefix = "remote:"

// Location identifies one stored recording. It is either a path relative to
// the local storage root or an object-storage key carrying the remote prefix.
// A Location is immutable once created and owned by the call record it is
// attached to.
type Location string

func LocalLocation(path string) Location {
	return Location(path)
}

func RemoteLocation(key string) Location {
	return Location(remotePrefix + key)
}

// ParseLocation restores a Location from its persisted string form.
func ParseLocation(s string) Location {
	return Location(s)
}

func (l Location) IsRemote() bool {
	return strings.HasPrefix(string(l), remotePrefix)
}

// Key returns the object key for remote locations or the relative path for
// local ones.
func (l Location) Key() string {
	if l.IsRemote() {
		return strings.TrimPrefix(string(l), remotePrefix)
	}
	return string(l)
}

func (l Location) String() string {
	return string(l)
}
