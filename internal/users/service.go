package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
)

// Service holds account business rules.
type Service struct {
	repo     Repository
	policy   PasswordPolicy
	validate *validator.Validate
	cost     int
}

// NewService builds a Service. A zero policy falls back to DefaultPasswordPolicy.
func NewService(repo Repository, policy PasswordPolicy) *Service {
	if policy.MinLength <= 0 {
		policy.MinLength = DefaultPasswordPolicy.MinLength
	}
	if policy.MaxLength <= 0 || policy.MaxLength < policy.MinLength {
		policy.MaxLength = DefaultPasswordPolicy.MaxLength
	}
	return &Service{repo: repo, policy: policy, validate: shared.NewValidator(), cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost, mainly to keep tests fast.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

type profileRecord struct {
	Name  string `form:"name" validate:"required"`
	Email string `form:"email" validate:"required,email"`
}

// Register validates the input and creates the account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	user := &User{
		Name:  normalizeName(in.Name),
		Email: strings.TrimSpace(in.Email),
		Job:   strings.TrimSpace(in.Job),
	}
	errs, err := s.validateProfile(user)
	if err != nil {
		return nil, err
	}
	s.checkPassword(errs, in.Password, in.PasswordConfirmation)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return nil, shared.FieldErrors{"email": "has already been taken"}
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of in to the stored user. The
// password is never touched here.
func (s *Service) UpdateProfile(ctx context.Context, id int64, in ProfileInput) (*User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		user.Name = normalizeName(*in.Name)
	}
	if in.Email != nil {
		user.Email = strings.TrimSpace(*in.Email)
	}
	if in.Job != nil {
		user.Job = strings.TrimSpace(*in.Job)
	}
	errs, err := s.validateProfile(user)
	if err != nil {
		return nil, err
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return nil, shared.FieldErrors{"email": "has already been taken"}
		}
		return nil, err
	}
	return user, nil
}

// UpdateWithPassword changes the password of user after verifying the current
// one. Every problem is reported at once and nothing is written on failure.
func (s *Service) UpdateWithPassword(ctx context.Context, user *User, in ChangePasswordInput) (*User, error) {
	if user == nil {
		return nil, shared.ErrNotFound
	}
	errs := shared.FieldErrors{}
	switch {
	case in.CurrentPassword == "":
		errs.Add("current_password", "can't be blank")
	case !VerifyPassword(user.PasswordHash, in.CurrentPassword):
		errs.Add("current_password", "is invalid")
	}
	confirmation := in.PasswordConfirmation
	s.checkPassword(errs, in.Password, &confirmation)
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return s.setPassword(ctx, user.ID, in.Password)
}

// ResetPassword sets a new password without asking for the current one. The
// caller is responsible for proving control of the account.
func (s *Service) ResetPassword(ctx context.Context, id int64, password, confirmation string) (*User, error) {
	errs := shared.FieldErrors{}
	s.checkPassword(errs, password, &confirmation)
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return s.setPassword(ctx, id, password)
}

// Delete removes the account.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// FindByID returns the user with id.
func (s *Service) FindByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByEmail returns the user registered with email.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindByEmail(ctx, strings.TrimSpace(email))
}

// Count returns the number of accounts.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

// VerifyPassword reports whether password matches hash.
func VerifyPassword(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *Service) setPassword(ctx context.Context, id int64, password string) (*User, error) {
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePasswordHash(ctx, id, hash); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) validateProfile(user *User) (shared.FieldErrors, error) {
	return shared.ValidationFieldErrors(s.validate.Struct(profileRecord{Name: user.Name, Email: user.Email}))
}

// maxPasswordBytes is the most input bcrypt accepts.
const maxPasswordBytes = 72

func (s *Service) checkPassword(errs shared.FieldErrors, password string, confirmation *string) {
	rules := fmt.Sprintf("required,min=%d,max=%d", s.policy.MinLength, s.policy.MaxLength)
	if err := s.validate.Var(password, rules); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			errs.Add("password", shared.Message(verrs[0].Tag(), verrs[0].Param()))
		} else {
			errs.Add("password", "is invalid")
		}
	}
	if len(password) > maxPasswordBytes {
		errs.Add("password", fmt.Sprintf("is too long (maximum is %d bytes)", maxPasswordBytes))
	}
	if confirmation != nil && *confirmation != password {
		errs.Add("password_confirmation", shared.Message("eqfield", "Password"))
	}
}

func (s *Service) hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("users: hash password: %w", err)
	}
	return string(hashed), nil
}

func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
