package models

import (
	"strings"
	"time"
)

// Contact is an address-book entry owned by exactly one user.
type Contact struct {
	ID             int64
	FirstName      string
	LastName       string
	Email          string
	PhoneNumber    string
	BirthDate      time.Time
	AdditionalData string
	OwnerID        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName joins first and last name.
func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Age returns completed years at the given day.
func (c *Contact) Age(today time.Time) int {
	age := today.Year() - c.BirthDate.Year()
	if today.YearDay() < birthdayIn(c.BirthDate, today.Year()).YearDay() {
		age--
	}
	return age
}

// DaysUntilBirthday returns 0 when the birthday is today, otherwise the number
// of days until the next one.
func (c *Contact) DaysUntilBirthday(today time.Time) int {
	today = dateOnly(today)
	next := birthdayIn(c.BirthDate, today.Year())
	if next.Before(today) {
		next = birthdayIn(c.BirthDate, today.Year()+1)
	}
	return int(next.Sub(today).Hours() / 24)
}

// birthdayIn places a birth date in the given year. February 29 falls on
// February 28 in common years.
func birthdayIn(birth time.Time, year int) time.Time {
	month, day := birth.Month(), birth.Day()
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
