// Package validation checks user input before anything is sent or queued.
package validation

import (
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/models"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// Hostel validates the writable fields of a hostel.
func Hostel(in models.HostelInput) error {
	fields := apperrors.FieldErrors{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "Hostel name is required"
	}
	if strings.TrimSpace(in.Location) == "" {
		fields["location"] = "Location is required"
	}
	switch {
	case in.Capacity == 0:
		fields["capacity"] = "Capacity is required"
	case in.Capacity < 1:
		fields["capacity"] = "Capacity must be a positive number"
	}
	return apperrors.Validation(fields)
}

// HostelForm parses and validates hostel fields entered as text.
func HostelForm(name, location, capacity string) (models.HostelInput, error) {
	in := models.HostelInput{Name: strings.TrimSpace(name), Location: strings.TrimSpace(location)}
	fields := apperrors.FieldErrors{}

	capacity = strings.TrimSpace(capacity)
	if capacity != "" {
		n, err := strconv.Atoi(capacity)
		if err != nil || n < 1 {
			fields["capacity"] = "Capacity must be a positive number"
		} else {
			in.Capacity = n
		}
	}

	if err := Hostel(in); err != nil {
		for k, v := range err.(*apperrors.AppError).Fields {
			if _, set := fields[k]; !set {
				fields[k] = v
			}
		}
	}
	return in, apperrors.Validation(fields)
}

// Credentials validates a login request.
func Credentials(c models.Credentials) error {
	fields := apperrors.FieldErrors{}
	email(fields, c.Email)
	if c.Password == "" {
		fields["password"] = "Password is required"
	}
	return apperrors.Validation(fields)
}

// Registration validates a register request.
func Registration(r models.Registration) error {
	fields := apperrors.FieldErrors{}
	if strings.TrimSpace(r.Name) == "" {
		fields["name"] = "Name is required"
	}
	email(fields, r.Email)
	switch {
	case r.Password == "":
		fields["password"] = "Password is required"
	case len(r.Password) < MinPasswordLength:
		fields["password"] = "Password must be at least 6 characters"
	}
	return apperrors.Validation(fields)
}

func email(fields apperrors.FieldErrors, s string) {
	switch {
	case s == "":
		fields["email"] = "Email is required"
	case !emailPattern.MatchString(s):
		fields["email"] = "Email is invalid"
	}
}
