package lead

import "time"

// Status is the lifecycle stage of a lead.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusQualified Status = "qualified"
	StatusConverted Status = "converted"
	StatusArchived  Status = "archived"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusConverted, StatusArchived, StatusRejected:
		return true
	}
	return false
}

// Lead is a prospect submission from the landing page form.
type Lead struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Phone      *string   `json:"phone"`
	Profession *string   `json:"profession"`
	Message    *string   `json:"message"`
	Notes      *string   `json:"notes"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateLeadInput is the public submission body.
type CreateLeadInput struct {
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Email      string  `json:"email"`
	Phone      *string `json:"phone,omitempty"`
	Profession *string `json:"profession,omitempty"`
	Message    *string `json:"message,omitempty"`
}

// UpdateLeadInput holds optional fields for a partial update. Nil fields
// are left unchanged. An empty phone, profession, message or notes clears
// the column to NULL.
type UpdateLeadInput struct {
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Profession *string `json:"profession,omitempty"`
	Message    *string `json:"message,omitempty"`
	Notes      *string `json:"notes,omitempty"`
	Status     *Status `json:"status,omitempty"`
}
