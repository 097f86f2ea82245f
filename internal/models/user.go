package models

import "time"

// User is a profile record keyed by email. The public space core never requires one
// to exist; it is kept for the profile pages.
type User struct {
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Username     string    `json:"username,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	Location     string    `json:"location,omitempty"`
	Website      string    `json:"website,omitempty"`
	DOB          string    `json:"dob,omitempty"`
	ProfileImage string    `json:"profileImage,omitempty"`
	CoverImage   string    `json:"coverimage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserUpdate is a partial profile change; nil fields are left untouched.
type UserUpdate struct {
	Name         *string `json:"name,omitempty"`
	Username     *string `json:"username,omitempty"`
	Bio          *string `json:"bio,omitempty"`
	Location     *string `json:"location,omitempty"`
	Website      *string `json:"website,omitempty"`
	DOB          *string `json:"dob,omitempty"`
	ProfileImage *string `json:"profileImage,omitempty"`
	CoverImage   *string `json:"coverimage,omitempty"`
}

// Apply copies every set field of upd onto u.
func (upd *UserUpdate) Apply(u *User) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&u.Name, upd.Name)
	set(&u.Username, upd.Username)
	set(&u.Bio, upd.Bio)
	set(&u.Location, upd.Location)
	set(&u.Website, upd.Website)
	set(&u.DOB, upd.DOB)
	set(&u.ProfileImage, upd.ProfileImage)
	set(&u.CoverImage, upd.CoverImage)
}

// Fields returns the set fields keyed by their JSON names.
func (upd *UserUpdate) Fields() map[string]string {
	out := make(map[string]string)
	add := func(name string, v *string) {
		if v != nil {
			out[name] = *v
		}
	}
	add("name", upd.Name)
	add("username", upd.Username)
	add("bio", upd.Bio)
	add("location", upd.Location)
	add("website", upd.Website)
	add("dob", upd.DOB)
	add("profileImage", upd.ProfileImage)
	add("coverimage", upd.CoverImage)
	return out
}
