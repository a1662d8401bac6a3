// Package ownership decides whether an authenticated identity may mutate a
// resource it claims to own.
package ownership

// Allows reports whether requesterID may mutate a resource owned by ownerID.
// Both sides are canonical int64 identities; the zero value is never a valid
// identity and is always denied.
func Allows(requesterID, ownerID int64) bool {
	return requesterID > 0 && requesterID == ownerID
}
