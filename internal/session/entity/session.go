package entity

// User is the identity record carried by an authenticated session.
// Avatar, ProfileURL, Bio and Visibility mirror the profile record and may
// lag behind it.
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Role       string `json:"role,omitempty"`
	IsVerified bool   `json:"isVerified"`
	Avatar     string `json:"avatar,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
	Bio        string `json:"bio,omitempty"`
	Visibility string `json:"visibility,omitempty"`
}

// Valid reports whether the record carries the fields every session needs.
func (u User) Valid() bool {
	return u.ID != "" && u.Email != ""
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up payload.
type Registration struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// AuthResult is what the API returns on a successful login or register.
type AuthResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
	// DeactivationNotice is set when the account was deactivated but may be
	// reactivated by this login.
	DeactivationNotice string `json:"deactivationNotice,omitempty"`
}

// Snapshot is the single durable record. It is always written whole.
// ActiveRequest is the id of the user's open account lifecycle request.
type Snapshot struct {
	User          User   `json:"user"`
	Token         string `json:"token"`
	ActiveRequest string `json:"activeRequest,omitempty"`
}

// UserPatch carries trusted fields to merge into the active user. UserID,
// when set, must equal the active user's id.
type UserPatch struct {
	UserID     string
	FirstName  *string
	LastName   *string
	IsVerified *bool
	Avatar     *string
	ProfileURL *string
	Bio        *string
	Visibility *string
}

// Apply returns u with the non-nil patch fields copied in.
func (p UserPatch) Apply(u User) User {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.IsVerified != nil {
		u.IsVerified = *p.IsVerified
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.ProfileURL != nil {
		u.ProfileURL = *p.ProfileURL
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.Visibility != nil {
		u.Visibility = *p.Visibility
	}
	return u
}
