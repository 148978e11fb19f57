package entity

// Record holds the extended profile attributes of one user. It is keyed by
// UserID and is only meaningful for that identity.
type Record struct {
	UserID      string `json:"userId"`
	Phone       string `json:"phone,omitempty"`
	Birthday    string `json:"birthday,omitempty"` // YYYY-MM-DD
	Language    string `json:"language,omitempty"`
	Description string `json:"description,omitempty"`
	CustomURL   string `json:"customUrl,omitempty"`
	Visibility  string `json:"visibility,omitempty"` // public / private
	Avatar      string `json:"avatar,omitempty"`
}
