package domain

// DefaultKeyPrefix namespaces every key written by the service.
const DefaultKeyPrefix = "credits:"

// Defaults mirror the values a fresh deployment starts with.
const (
	DefaultUserCap           int64 = 100
	DefaultUserGrantValue    int64 = 10
	DefaultUserGrantInterval int64 = 600 // seconds
	DefaultTaskInterval      int64 = 60  // seconds
)
