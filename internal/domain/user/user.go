// Package user holds the identity a credit rule is evaluated against.
package user

// Identity describes a user as known to the hosting system.
type Identity struct {
	Name   string
	Groups []string
	Admin  bool
}

// InGroup reports whether the identity is a member of group.
func (i Identity) InGroup(group string) bool {
	for _, g := range i.Groups {
		if g == group {
			return true
		}
	}
	return false
}
