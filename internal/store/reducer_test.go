package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kimhsiao/hostelhub/client/internal/models"
)

func hostel(id, name string, capacity int) models.Hostel {
	return models.Hostel{ID: models.ID(id), Name: name, Location: "Porto", Capacity: capacity}
}

func TestReduce(t *testing.T) {
	base := State{
		Hostels:   []models.Hostel{hostel("1", "A", 5), hostel("2", "B", 6)},
		UserCount: 3,
		Status:    StatusReady,
	}

	tests := []struct {
		name   string
		action Action
		check  func(t *testing.T, s State)
	}{
		{"set loading", SetLoading{}, func(t *testing.T, s State) {
			assert.True(t, s.Loading())
			assert.Len(t, s.Hostels, 2)
		}},
		{"hostels loaded", HostelsLoaded{Hostels: []models.Hostel{hostel("9", "Z", 1)}, UserCount: 7}, func(t *testing.T, s State) {
			assert.Equal(t, StatusReady, s.Status)
			assert.Equal(t, []models.Hostel{hostel("9", "Z", 1)}, s.Hostels)
			assert.Equal(t, 7, s.UserCount)
		}},
		{"hostel loaded", HostelLoaded{Hostel: hostel("2", "B", 6)}, func(t *testing.T, s State) {
			if assert.NotNil(t, s.Hostel) {
				assert.Equal(t, models.ID("2"), s.Hostel.ID)
			}
		}},
		{"hostel added without id", HostelAdded{Hostel: hostel("", "C", 2)}, func(t *testing.T, s State) {
			assert.Len(t, s.Hostels, 3)
			assert.True(t, s.Hostels[2].ID.IsZero())
		}},
		{"hostel updated", HostelUpdated{Hostel: hostel("1", "A", 10)}, func(t *testing.T, s State) {
			assert.Equal(t, 10, s.Hostels[0].Capacity)
			assert.Equal(t, 6, s.Hostels[1].Capacity)
			assert.Equal(t, 10, s.Hostel.Capacity)
		}},
		{"hostel updated unknown id", HostelUpdated{Hostel: hostel("404", "X", 1)}, func(t *testing.T, s State) {
			assert.Equal(t, base.Hostels, s.Hostels)
		}},
		{"hostel deleted", HostelDeleted{ID: "1"}, func(t *testing.T, s State) {
			assert.Equal(t, []models.Hostel{hostel("2", "B", 6)}, s.Hostels)
		}},
		{"failed keeps collection", Failed{Message: "Error fetching hostels"}, func(t *testing.T, s State) {
			assert.Equal(t, StatusError, s.Status)
			assert.Equal(t, "Error fetching hostels", s.Err)
			assert.Equal(t, base.Hostels, s.Hostels)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Reduce(base, tt.action))
		})
	}

	// base must be untouched by every reduction above
	assert.Equal(t, []models.Hostel{hostel("1", "A", 5), hostel("2", "B", 6)}, base.Hostels)
}

func TestReduce_errorLifecycle(t *testing.T) {
	s := State{Status: StatusReady}

	s = Reduce(s, SetLoading{})
	s = Reduce(s, Failed{Message: "boom"})
	assert.Equal(t, StatusError, s.Status)

	// loading again keeps the message until something succeeds
	s = Reduce(s, SetLoading{})
	assert.Equal(t, "boom", s.Err)

	s = Reduce(s, HostelsLoaded{})
	assert.Equal(t, "", s.Err)
	assert.Equal(t, StatusReady, s.Status)

	s = Reduce(s, Failed{Message: "again"})
	s = Reduce(s, ClearError{})
	assert.Equal(t, "", s.Err)
	assert.Equal(t, StatusIdle, s.Status)
}
