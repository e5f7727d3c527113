package models

import "time"

// Hostel is the managed business record.
type Hostel struct {
	ID        ID         `json:"id,omitempty"`
	Name      string     `json:"name"`
	Location  string     `json:"location"`
	Capacity  int        `json:"capacity"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Creator   *Creator   `json:"creator,omitempty"`
}

// Creator is the user that added a hostel, as embedded by the API.
type Creator struct {
	ID    ID     `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// HostelInput holds the writable fields of a hostel.
type HostelInput struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Capacity int    `json:"capacity"`
}

// Provisional returns the shape a hostel takes in memory before the server has seen it.
// No id is assigned and server-side fields stay empty.
func (in HostelInput) Provisional() Hostel {
	return Hostel{
		Name:     in.Name,
		Location: in.Location,
		Capacity: in.Capacity,
	}
}

// HostelUpdate is the payload of an update: the input plus the id it applies to.
type HostelUpdate struct {
	ID ID `json:"id"`
	HostelInput
}

// Hostel returns the optimistic record for an offline update.
func (u HostelUpdate) Hostel() Hostel {
	h := u.HostelInput.Provisional()
	h.ID = u.ID
	return h
}
