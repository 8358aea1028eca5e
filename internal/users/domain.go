package users

import "time"

// authStampLength covers the bcrypt version, cost and salt prefix of a hash.
const authStampLength = 29

// User represents a registered account.
type User struct {
	ID           int64
	Name         string
	Email        string
	Job          string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthStamp identifies the password generation a session was signed in with.
// It changes whenever the password hash changes.
func (u *User) AuthStamp() string {
	if u == nil {
		return ""
	}
	if len(u.PasswordHash) < authStampLength {
		return u.PasswordHash
	}
	return u.PasswordHash[:authStampLength]
}

// RegisterInput carries the fields accepted on sign up.
type RegisterInput struct {
	Name                 string
	Email                string
	Job                  string
	Password             string
	PasswordConfirmation *string
}

// ProfileInput carries profile edits. Nil fields are left untouched.
type ProfileInput struct {
	Name  *string
	Email *string
	Job   *string
}

// ChangePasswordInput carries an authenticated password change.
type ChangePasswordInput struct {
	CurrentPassword      string
	Password             string
	PasswordConfirmation string
}

// PasswordPolicy bounds acceptable password lengths.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// DefaultPasswordPolicy applies when no policy is configured.
var DefaultPasswordPolicy = PasswordPolicy{MinLength: 6, MaxLength: 72}
