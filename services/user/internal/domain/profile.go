package domain

import "time"

// UserProfile holds the optional personal details of an account. Text fields
// are nil when unset.
type UserProfile struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	FirstName   *string        `json:"firstName"`
	LastName    *string        `json:"lastName"`
	Bio         *string        `json:"bio"`
	AvatarURL   *string        `json:"avatarUrl"`
	Preferences map[string]any `json:"preferences"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// ProfilePatch is a partial update. A nil field keeps the stored value; a
// pointer to "" clears it. A non-nil Preferences replaces the whole object.
type ProfilePatch struct {
	FirstName   *string
	LastName    *string
	Bio         *string
	AvatarURL   *string
	Preferences map[string]any
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Bio == nil && p.AvatarURL == nil && p.Preferences == nil
}

// Apply returns a copy of profile with the patch applied.
func (p ProfilePatch) Apply(profile UserProfile) UserProfile {
	profile.FirstName = patchText(profile.FirstName, p.FirstName)
	profile.LastName = patchText(profile.LastName, p.LastName)
	profile.Bio = patchText(profile.Bio, p.Bio)
	profile.AvatarURL = patchText(profile.AvatarURL, p.AvatarURL)
	if p.Preferences != nil {
		profile.Preferences = p.Preferences
	}
	return profile
}

func patchText(current, next *string) *string {
	switch {
	case next == nil:
		return current
	case *next == "":
		return nil
	default:
		v := *next
		return &v
	}
}
