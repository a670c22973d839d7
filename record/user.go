package record

import "github.com/unkn0wn-root/querycache"

type User struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	DisplayName   string   `json:"display_name"`
	DietaryPrefs  []string `json:"dietary_prefs"`
	HouseholdSize int      `json:"household_size"`
}

func (u User) Identity() querycache.Identity { return querycache.Identity{ID: u.ID} }
func (User) Kind() Kind                       { return KindUser }

// UserPatch updates profile fields. Nil fields are left untouched.
type UserPatch struct {
	DisplayName   *string   `json:"display_name,omitempty"`
	DietaryPrefs  *[]string `json:"dietary_prefs,omitempty"`
	HouseholdSize *int      `json:"household_size,omitempty"`
}

func (p UserPatch) Empty() bool {
	return p.DisplayName == nil && p.DietaryPrefs == nil && p.HouseholdSize == nil
}

// Apply returns u with the patched fields replaced.
func (p UserPatch) Apply(u User) User {
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if p.DietaryPrefs != nil {
		u.DietaryPrefs = append([]string(nil), (*p.DietaryPrefs)...)
	}
	if p.HouseholdSize != nil {
		u.HouseholdSize = *p.HouseholdSize
	}
	return u
}
