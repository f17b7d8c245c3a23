package models

// Staff is the acting principal. Capabilities come from the auth token.
type Staff struct {
	ID           string    `json:"id"`
	Capabilities []RoleTag `json:"capabilities"`
}

func (s Staff) Has(role RoleTag) bool {
	for _, c := range s.Capabilities {
		if c == role {
			return true
		}
	}
	return false
}

func (s Staff) IsAdmin() bool {
	return s.Has(RoleAdmin)
}

// StaffContact is what the notification channel needs to reach a person.
type StaffContact struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Email       string `json:"email,omitempty"`
}
