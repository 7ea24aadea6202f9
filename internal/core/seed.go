package core

// Directory is the set of known users and families a session can log into.
type Directory struct {
	Users    []User
	Families []Family
}

// User looks a user up by id.
func (d Directory) User(id string) (User, bool) {
	for _, u := range d.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// Family returns a private copy of family id.
func (d Directory) Family(id string) (Family, bool) {
	for _, f := range d.Families {
		if f.ID == id {
			return f.Clone(), true
		}
	}
	return Family{}, false
}

// SeedDirectory is the demo household shipped with the app.
func SeedDirectory() Directory {
	users := []User{
		{
			ID:       "1",
			Name:     "Alex Johnson",
			Email:    "alex@example.com",
			Role:     RoleParent,
			Avatar:   "https://images.unsplash.com/photo-1507003211169-0a1dd7228f2d?w=400&auto=format&fit=crop&q=60&ixlib=rb-4.0.3",
			FamilyID: "family1",
		},
		{
			ID:       "2",
			Name:     "Emma Johnson",
			Role:     RoleChild,
			Avatar:   "https://images.unsplash.com/photo-1494790108377-be9c29b29330?w=400&auto=format&fit=crop&q=60&ixlib=rb-4.0.3",
			FamilyID: "family1",
		},
		{
			ID:       "3",
			Name:     "Noah Johnson",
			Role:     RoleChild,
			Avatar:   "https://images.unsplash.com/photo-1539571696357-5a69c17a67c6?w=400&auto=format&fit=crop&q=60&ixlib=rb-4.0.3",
			FamilyID: "family1",
		},
	}

	rules := []FamilyRule{
		{
			ID:          "rule1",
			Title:       "Save 10% of allowance",
			Description: "Always set aside 10% of any money received into your savings account.",
			IsActive:    true,
		},
		{
			ID:          "rule2",
			Title:       "Weekly spending limit",
			Description: "No more than $20 can be spent on entertainment per week.",
			IsActive:    true,
		},
		{
			ID:          "rule3",
			Title:       "Educational purchases",
			Description: "Books and educational materials are always approved.",
			IsActive:    true,
		},
	}

	return Directory{
		Users: users,
		Families: []Family{{
			ID:      "family1",
			Name:    "Johnson Family",
			Members: append([]User(nil), users...),
			Rules:   rules,
		}},
	}
}
