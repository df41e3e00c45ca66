package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
	"github.com/dmitrijs2005/contactbook/internal/server/services"
	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=6,max=255"`
	// Role is accepted for compatibility and ignored: self-registration
	// always yields a regular user.
	Role string `json:"role,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=255"`
}

type updateMeRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

type contactRequest struct {
	FirstName      string  `json:"first_name" validate:"required,max=50"`
	LastName       string  `json:"last_name" validate:"required,max=50"`
	Email          string  `json:"email" validate:"required,email,max=100"`
	PhoneNumber    string  `json:"phone_number" validate:"required,max=20"`
	BirthDate      string  `json:"birth_date" validate:"required,datetime=2006-01-02"`
	AdditionalData *string `json:"additional_data"`
}

func (c contactRequest) input() services.ContactInput {
	birth, _ := time.Parse(dateLayout, c.BirthDate)
	in := services.ContactInput{
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		PhoneNumber: c.PhoneNumber,
		BirthDate:   birth,
	}
	if c.AdditionalData != nil {
		in.AdditionalData = *c.AdditionalData
	}
	return in
}

type contactPatchRequest struct {
	FirstName      *string `json:"first_name" validate:"omitempty,max=50"`
	LastName       *string `json:"last_name" validate:"omitempty,max=50"`
	Email          *string `json:"email" validate:"omitempty,email,max=100"`
	PhoneNumber    *string `json:"phone_number" validate:"omitempty,max=20"`
	BirthDate      *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	AdditionalData *string `json:"additional_data"`
}

func (c contactPatchRequest) patch() services.ContactPatch {
	p := services.ContactPatch{
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		Email:          c.Email,
		PhoneNumber:    c.PhoneNumber,
		AdditionalData: c.AdditionalData,
	}
	if c.BirthDate != nil {
		birth, _ := time.Parse(dateLayout, *c.BirthDate)
		p.BirthDate = &birth
	}
	return p
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func newTokenResponse(p *services.TokenPair) tokenResponse {
	return tokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenType: "bearer"}
}

type userResponse struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	AvatarURL  *string   `json:"avatar_url"`
	Role       string    `json:"role"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

func newUserResponse(u *models.User) userResponse {
	resp := userResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       string(u.Role),
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
	if u.AvatarURL != "" {
		resp.AvatarURL = &u.AvatarURL
	}
	return resp
}

type contactResponse struct {
	ID                int64     `json:"id"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	FullName          string    `json:"full_name"`
	Email             string    `json:"email"`
	PhoneNumber       string    `json:"phone_number"`
	BirthDate         string    `json:"birth_date"`
	Age               int       `json:"age"`
	DaysUntilBirthday int       `json:"days_until_birthday"`
	AdditionalData    *string   `json:"additional_data"`
	OwnerID           int64     `json:"owner_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newContactResponse(c *models.Contact, today time.Time) contactResponse {
	resp := contactResponse{
		ID:                c.ID,
		FirstName:         c.FirstName,
		LastName:          c.LastName,
		FullName:          c.FullName(),
		Email:             c.Email,
		PhoneNumber:       c.PhoneNumber,
		BirthDate:         c.BirthDate.Format(dateLayout),
		Age:               c.Age(today),
		DaysUntilBirthday: c.DaysUntilBirthday(today),
		OwnerID:           c.OwnerID,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
	if c.AdditionalData != "" {
		resp.AdditionalData = &c.AdditionalData
	}
	return resp
}

func newContactList(list []*models.Contact, today time.Time) []contactResponse {
	out := make([]contactResponse, 0, len(list))
	for _, c := range list {
		out = append(out, newContactResponse(c, today))
	}
	return out
}

// decode reads a JSON body into dst and validates it. Failures wrap
// common.ErrorValidation.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body", common.ErrorValidation)
	}
	return check(dst)
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", common.ErrorValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "datetime":
		return field + " must be a date in YYYY-MM-DD format"
	default:
		return field + " is invalid"
	}
}
