package patients

import (
	"io"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Validate checks the contact fields.
func (r *CreateUserRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	if n := utf8.RuneCountInString(r.Name); n < 2 || n > 50 {
		return ErrInvalidName
	}
	if !validEmail(r.Email) {
		return ErrInvalidEmail
	}
	if !validPhone(r.Phone) {
		return ErrInvalidPhone
	}
	return nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// validPhone accepts E.164 numbers.
func validPhone(s string) bool {
	if !strings.HasPrefix(s, "+") {
		return false
	}
	digits := s[1:]
	if len(digits) < 8 || len(digits) > 15 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Gender values accepted on registration.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// Profile is the registration form content of a patient.
type Profile struct {
	UserID                 string     `json:"user_id"`
	Name                   string     `json:"name"`
	Email                  string     `json:"email"`
	Phone                  string     `json:"phone"`
	BirthDate              *time.Time `json:"birth_date,omitempty"`
	Gender                 string     `json:"gender"`
	Address                string     `json:"address"`
	Occupation             string     `json:"occupation"`
	EmergencyContactName   string     `json:"emergency_contact_name"`
	EmergencyContactNumber string     `json:"emergency_contact_number"`
	PrimaryPhysician       string     `json:"primary_physician"`
	InsuranceProvider      string     `json:"insurance_provider"`
	InsurancePolicyNumber  string     `json:"insurance_policy_number"`
	Allergies              string     `json:"allergies,omitempty"`
	CurrentMedication      string     `json:"current_medication,omitempty"`
	FamilyMedicalHistory   string     `json:"family_medical_history,omitempty"`
	PastMedicalHistory     string     `json:"past_medical_history,omitempty"`
	IdentificationType     string     `json:"identification_type,omitempty"`
	IdentificationNumber   string     `json:"identification_number,omitempty"`
	TreatmentConsent       bool       `json:"treatment_consent"`
	DisclosureConsent      bool       `json:"disclosure_consent"`
	PrivacyConsent         bool       `json:"privacy_consent"`
}

// Validate checks identity, contact and consent fields.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrMissingUserID
	}
	contact := CreateUserRequest{Name: p.Name, Email: p.Email, Phone: p.Phone}
	if err := contact.Validate(); err != nil {
		return err
	}
	p.Name, p.Email, p.Phone = contact.Name, contact.Email, contact.Phone

	switch p.Gender {
	case "", GenderMale, GenderFemale, GenderOther:
	default:
		return ErrInvalidGender
	}
	if p.EmergencyContactNumber != "" && !validPhone(p.EmergencyContactNumber) {
		return ErrInvalidPhone
	}
	if !p.TreatmentConsent || !p.DisclosureConsent || !p.PrivacyConsent {
		return ErrMissingConsent
	}
	return nil
}

// Patient is a stored patient document. The identification references are
// null when no file was stored.
type Patient struct {
	ID string `json:"id"`
	Profile
	IdentificationDocumentID  *string   `json:"identification_document_id"`
	IdentificationDocumentURL *string   `json:"identification_document_url"`
	CreatedAt                 time.Time `json:"created_at"`
}

// IdentificationDocument is an uploaded identification file.
type IdentificationDocument struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// RegisterRequest carries a profile and an optional identification file.
type RegisterRequest struct {
	Profile
	IdentificationDocument *IdentificationDocument `json:"-"`
}
