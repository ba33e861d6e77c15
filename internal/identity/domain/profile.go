package domain

import "time"

// Profile is the sanitized view of a User that may leave the service. Fields are
// copied one by one; PasswordHash and EncryptedPersonalData have no counterpart here.
type Profile struct {
	ID          string     `json:"id"`
	Username    *string    `json:"username"`
	Email       *string    `json:"email"`
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	DateOfBirth *string    `json:"date_of_birth"`
	Gender      *string    `json:"gender"`
	PhoneNumber *string    `json:"phone_number"`
	IsAnonymous bool       `json:"is_anonymous"`
	IsVerified  bool       `json:"is_verified"`
	IsActive    bool       `json:"is_active"`
	Role        string     `json:"role"`
	LastLogin   *time.Time `json:"last_login"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	PrivacyConsent bool `json:"privacy_consent"`
	TermsAccepted  bool `json:"terms_accepted"`

	CreatedBy              *string    `json:"created_by"`
	UpdatedBy              *string    `json:"updated_by"`
	DataRetentionUntil     *time.Time `json:"data_retention_until"`
	AnonymizationRequested bool       `json:"anonymization_requested"`
	AnonymizationDate      *time.Time `json:"anonymization_date"`
}

// Sanitize returns the external view of u.
func (u *User) Sanitize() Profile {
	p := Profile{
		ID:                     u.ID,
		Username:               optString(u.Username),
		Email:                  optString(u.Email),
		FirstName:              optString(u.FirstName),
		LastName:               optString(u.LastName),
		Gender:                 optString(string(u.Gender)),
		PhoneNumber:            optString(u.PhoneNumber),
		IsAnonymous:            u.IsAnonymous,
		IsVerified:             u.IsVerified,
		IsActive:               u.IsActive,
		Role:                   string(u.Role),
		LastLogin:              u.LastLogin,
		CreatedAt:              u.CreatedAt,
		UpdatedAt:              u.UpdatedAt,
		PrivacyConsent:         u.PrivacyConsent,
		TermsAccepted:          u.TermsAccepted,
		CreatedBy:              optString(u.CreatedBy),
		UpdatedBy:              optString(u.UpdatedBy),
		DataRetentionUntil:     u.DataRetentionUntil,
		AnonymizationRequested: u.AnonymizationRequested,
		AnonymizationDate:      u.AnonymizationDate,
	}
	if u.DateOfBirth != nil {
		d := u.DateOfBirth.Format(DateLayout)
		p.DateOfBirth = &d
	}
	return p
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
