package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestContact_FullName(t *testing.T) {
	c := &Contact{FirstName: "Ada", LastName: "Lovelace"}
	assert.Equal(t, "Ada Lovelace", c.FullName())
}

func TestContact_AgeAndDaysUntilBirthday(t *testing.T) {
	tests := []struct {
		name     string
		birth    time.Time
		today    time.Time
		wantAge  int
		wantDays int
	}{
		{name: "birthday today", birth: day(1990, time.May, 10), today: day(2025, time.May, 10), wantAge: 35, wantDays: 0},
		{name: "birthday tomorrow", birth: day(1990, time.May, 11), today: day(2025, time.May, 10), wantAge: 34, wantDays: 1},
		{name: "birthday passed", birth: day(1990, time.May, 9), today: day(2025, time.May, 10), wantAge: 35, wantDays: 364},
		{name: "year wrap", birth: day(2000, time.January, 2), today: day(2025, time.December, 29), wantAge: 25, wantDays: 4},
		{name: "leap day in common year", birth: day(2000, time.February, 29), today: day(2025, time.February, 27), wantAge: 24, wantDays: 1},
		{name: "leap day in leap year", birth: day(2000, time.February, 29), today: day(2024, time.February, 28), wantAge: 23, wantDays: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Contact{BirthDate: tt.birth}
			assert.Equal(t, tt.wantAge, c.Age(tt.today))
			assert.Equal(t, tt.wantDays, c.DaysUntilBirthday(tt.today))
		})
	}
}

func TestUser_ResetTokenAndClone(t *testing.T) {
	u := &User{Email: "a@example.com", Role: RoleUser}
	exp := day(2025, time.January, 1)
	u.SetResetToken("tok", exp)

	c := u.Clone()
	u.ClearResetToken()

	assert.Equal(t, "tok", c.ResetPasswordToken)
	if assert.NotNil(t, c.ResetPasswordExpires) {
		assert.True(t, c.ResetPasswordExpires.Equal(exp))
	}
	assert.Empty(t, u.ResetPasswordToken)
	assert.Nil(t, u.ResetPasswordExpires)
	assert.False(t, u.IsAdmin())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("root").Valid())
}
