package core

import (
	"net/mail"
	"strings"
)

type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool {
	switch r {
	case RoleParent, RoleChild:
		return true
	default:
		return false
	}
}

type (
	User struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Email    string `json:"email,omitempty"`
		Role     Role   `json:"role"`
		Avatar   string `json:"avatar,omitempty"`
		FamilyID string `json:"familyId"`
	}

	FamilyRule struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		IsActive    bool   `json:"isActive"`
	}

	Family struct {
		ID      string       `json:"id"`
		Name    string       `json:"name"`
		Members []User       `json:"members"`
		Rules   []FamilyRule `json:"rules"`
	}

	// UserPatch carries the user fields that may change in a session.
	// Identity fields (id, role, familyId) are fixed.
	UserPatch struct {
		Name   *string `json:"name,omitempty"`
		Email  *string `json:"email,omitempty"`
		Avatar *string `json:"avatar,omitempty"`
	}

	NewFamilyRule struct {
		Title       string
		Description string
		// IsActive defaults to true when nil.
		IsActive *bool
	}

	FamilyRulePatch struct {
		Title       *string
		Description *string
		IsActive    *bool
	}
)

func (u User) IsParent() bool {
	return u.Role == RoleParent
}

// Apply returns u with the patch merged in.
func (p UserPatch) Apply(u User) User {
	if p.Name != nil {
		u.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		u.Email = strings.TrimSpace(*p.Email)
	}
	if p.Avatar != nil {
		u.Avatar = strings.TrimSpace(*p.Avatar)
	}
	return u
}

func (p UserPatch) Validate() error {
	var v validator
	if p.Name != nil {
		v.check(strings.TrimSpace(*p.Name) != "", "name", "must not be empty")
	}
	if p.Email != nil && strings.TrimSpace(*p.Email) != "" {
		_, err := mail.ParseAddress(strings.TrimSpace(*p.Email))
		v.check(err == nil, "email", "must be a valid address")
	}
	return v.err()
}

func (r NewFamilyRule) Validate() error {
	var v validator
	v.check(strings.TrimSpace(r.Title) != "", "title", "must not be empty")
	v.check(strings.TrimSpace(r.Description) != "", "description", "must not be empty")
	return v.err()
}

func (p FamilyRulePatch) Validate() error {
	var v validator
	if p.Title != nil {
		v.check(strings.TrimSpace(*p.Title) != "", "title", "must not be empty")
	}
	if p.Description != nil {
		v.check(strings.TrimSpace(*p.Description) != "", "description", "must not be empty")
	}
	return v.err()
}

// Apply returns r with the patch merged in.
func (p FamilyRulePatch) Apply(r FamilyRule) FamilyRule {
	if p.Title != nil {
		r.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		r.Description = strings.TrimSpace(*p.Description)
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	return r
}

// MemberIndex returns the position of member id, or -1.
func (f *Family) MemberIndex(id string) int {
	for i := range f.Members {
		if f.Members[i].ID == id {
			return i
		}
	}
	return -1
}

// RuleIndex returns the position of rule id, or -1.
func (f *Family) RuleIndex(id string) int {
	for i := range f.Rules {
		if f.Rules[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone copies the family so callers never alias store-owned slices.
func (f Family) Clone() Family {
	out := f
	out.Members = append([]User(nil), f.Members...)
	out.Rules = append([]FamilyRule(nil), f.Rules...)
	return out
}
