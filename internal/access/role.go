// Package access resolves a user's role in a project and decides which
// project operations that role may perform.
package access

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is the only tag used for authorization. None means "not a member".
type Role string

const (
	None   Role = ""
	Admin  Role = "admin"
	Member Role = "member"
)

// ParseRole accepts the stored role names. "user" is the legacy name for a
// plain member.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return Admin, true
	case "member", "user":
		return Member, true
	}
	return None, false
}

func (r Role) Valid() bool { return r == Admin || r == Member }

// Title describes what a member does on the project. It never gates
// anything.
type Title string

const (
	TitleAdmin        Title = "Admin"
	TitleDeveloper    Title = "Developer"
	TitleDesigner     Title = "Designer"
	TitleProductOwner Title = "Product Owner"
	TitleTester       Title = "Tester"
)

var titles = []Title{TitleAdmin, TitleDeveloper, TitleDesigner, TitleProductOwner, TitleTester}

var titleCaser = cases.Title(language.English)

// ParseTitle normalizes case and spacing, so "product  owner" yields
// TitleProductOwner.
func ParseTitle(s string) (Title, bool) {
	norm := Title(titleCaser.String(strings.Join(strings.Fields(s), " ")))
	for _, t := range titles {
		if t == norm {
			return t, true
		}
	}
	return "", false
}

// DefaultTitle is used when a member is added without one.
func DefaultTitle(r Role) Title {
	if r == Admin {
		return TitleAdmin
	}
	return TitleDeveloper
}
