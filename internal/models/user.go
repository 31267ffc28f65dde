package models

import "time"

// SecurityQuestion is an optional extra login factor: the question text shown
// to the user and the bcrypt hash of the expected answer.
type SecurityQuestion struct {
	Question   string `json:"question"`
	AnswerHash string `json:"answer_hash"`
}

// User represents a registered webmail account. Email is the unique key.
type User struct {
	ID                int64              `json:"id"`
	Email             string             `json:"email"`
	Name              string             `json:"name"`
	PasswordHash      string             `json:"password_hash"`
	Admin             bool               `json:"admin"`
	Disabled          bool               `json:"disabled,omitempty"`
	SecurityQuestions []SecurityQuestion `json:"security_questions,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	LastLogin         *time.Time         `json:"last_login,omitempty"`
}

// Profile is the public view of a User returned by the API.
// It never carries credential material.
type Profile struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Admin     bool       `json:"admin"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Profile returns the public view of the user.
func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Admin:     u.Admin,
		LastLogin: u.LastLogin,
	}
}

// HasSecurityQuestions reports whether the account has the extra login factor
// configured.
func (u User) HasSecurityQuestions() bool {
	return len(u.SecurityQuestions) > 0
}
