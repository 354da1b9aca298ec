package types

// Context is a generic association row letting any external table refer to
// an Entity (spec.md §3, §4.5). External is the foreign table's name; Key is
// the foreign row's id rendered as a string so the same Context table serves
// every possible host, regardless of that host's own primary-key type.
type Context struct {
	EntityID ID
	External string
	Key      string
}
