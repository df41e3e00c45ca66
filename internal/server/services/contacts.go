package services

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
	"github.com/dmitrijs2005/contactbook/internal/server/repositories/contacts"
	"github.com/dmitrijs2005/contactbook/internal/server/repositories/repomanager"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DefaultContactLimit = 100
	MaxContactLimit     = 500
	BirthdayWindowDays  = 7
)

var (
	ErrEmptyName    = fmt.Errorf("%w: name should not be empty", common.ErrorValidation)
	ErrInvalidPhone = fmt.Errorf("%w: wrong phone number format", common.ErrorValidation)
	ErrInvalidLimit = fmt.Errorf("%w: limit must be between 1 and %d", common.ErrorValidation, MaxContactLimit)
	ErrInvalidSkip  = fmt.Errorf("%w: skip must not be negative", common.ErrorValidation)
)

var phonePattern = regexp.MustCompile(`^[+]?[1-9][\d\s\-()]{8,15}$`)

// ContactInput carries the fields of a new contact.
type ContactInput struct {
	FirstName      string
	LastName       string
	Email          string
	PhoneNumber    string
	BirthDate      time.Time
	AdditionalData string
}

// ContactPatch carries the fields to change; nil means unchanged.
type ContactPatch struct {
	FirstName      *string
	LastName       *string
	Email          *string
	PhoneNumber    *string
	BirthDate      *time.Time
	AdditionalData *string
}

type ContactService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

func NewContactService(db *sql.DB, m repomanager.RepositoryManager) *ContactService {
	return &ContactService{db: db, repomanager: m, now: time.Now}
}

func (s *ContactService) Create(ctx context.Context, ownerID int64, in ContactInput) (*models.Contact, error) {
	c := &models.Contact{
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          strings.TrimSpace(in.Email),
		PhoneNumber:    in.PhoneNumber,
		BirthDate:      in.BirthDate,
		AdditionalData: in.AdditionalData,
		OwnerID:        ownerID,
	}
	if err := normalizeContact(c); err != nil {
		return nil, err
	}

	created, err := s.repomanager.Contacts(s.db).Create(ctx, c)
	if err != nil {
		return nil, storeErr("error creating contact", err)
	}
	return created, nil
}

func (s *ContactService) Get(ctx context.Context, ownerID, id int64) (*models.Contact, error) {
	c, err := s.repomanager.Contacts(s.db).Get(ctx, id, ownerID)
	if err != nil {
		return nil, storeErr("error loading contact", err)
	}
	return c, nil
}

// List pages through the owner's contacts. A zero limit means
// DefaultContactLimit.
func (s *ContactService) List(ctx context.Context, ownerID int64, f contacts.ListFilter) ([]*models.Contact, error) {
	if f.Limit == 0 {
		f.Limit = DefaultContactLimit
	}
	if f.Limit < 1 || f.Limit > MaxContactLimit {
		return nil, ErrInvalidLimit
	}
	if f.Skip < 0 {
		return nil, ErrInvalidSkip
	}
	f.Search = strings.TrimSpace(f.Search)

	list, err := s.repomanager.Contacts(s.db).List(ctx, ownerID, f)
	if err != nil {
		return nil, storeErr("error listing contacts", err)
	}
	return list, nil
}

func (s *ContactService) Update(ctx context.Context, ownerID, id int64, p ContactPatch) (*models.Contact, error) {
	repo := s.repomanager.Contacts(s.db)

	c, err := repo.Get(ctx, id, ownerID)
	if err != nil {
		return nil, storeErr("error loading contact", err)
	}

	if p.FirstName != nil {
		c.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		c.LastName = *p.LastName
	}
	if p.Email != nil {
		c.Email = strings.TrimSpace(*p.Email)
	}
	if p.PhoneNumber != nil {
		c.PhoneNumber = *p.PhoneNumber
	}
	if p.BirthDate != nil {
		c.BirthDate = *p.BirthDate
	}
	if p.AdditionalData != nil {
		c.AdditionalData = *p.AdditionalData
	}
	if err := normalizeContact(c); err != nil {
		return nil, err
	}

	updated, err := repo.Update(ctx, c)
	if err != nil {
		return nil, storeErr("error updating contact", err)
	}
	return updated, nil
}

func (s *ContactService) Delete(ctx context.Context, ownerID, id int64) error {
	if err := s.repomanager.Contacts(s.db).Delete(ctx, id, ownerID); err != nil {
		return storeErr("error deleting contact", err)
	}
	return nil
}

// UpcomingBirthdays returns contacts with a birthday in the next
// BirthdayWindowDays days, today included, soonest first.
func (s *ContactService) UpcomingBirthdays(ctx context.Context, ownerID int64) ([]*models.Contact, error) {
	today := s.now()
	from := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, BirthdayWindowDays)

	// One extra day lets Feb 29 birthdays through when the window ends on
	// Feb 28 of a common year; the exact cut happens below.
	list, err := s.repomanager.Contacts(s.db).BirthdaysBetween(ctx, ownerID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, storeErr("error selecting birthdays", err)
	}

	out := list[:0]
	for _, c := range list {
		if c.DaysUntilBirthday(from) <= BirthdayWindowDays {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysUntilBirthday(from) < out[j].DaysUntilBirthday(from)
	})
	return out, nil
}

var titleCaser = cases.Title(language.Und)

func normalizeContact(c *models.Contact) error {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	if c.FirstName == "" || c.LastName == "" {
		return ErrEmptyName
	}
	c.FirstName = titleCaser.String(c.FirstName)
	c.LastName = titleCaser.String(c.LastName)

	c.PhoneNumber = strings.TrimSpace(c.PhoneNumber)
	if !phonePattern.MatchString(c.PhoneNumber) {
		return ErrInvalidPhone
	}
	if c.Email == "" {
		return fmt.Errorf("%w: email is required", common.ErrorValidation)
	}
	return nil
}
