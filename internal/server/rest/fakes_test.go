package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/logging"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
	"github.com/dmitrijs2005/contactbook/internal/server/repositories/contacts"
	"github.com/dmitrijs2005/contactbook/internal/server/services"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

var fixedNow = time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

// ---- identities ----

var (
	verifiedUser = &models.User{ID: 1, Username: "alice", Email: "alice@example.com", Role: models.RoleUser, IsVerified: true, CreatedAt: fixedNow}
	pendingUser  = &models.User{ID: 2, Username: "bob", Email: "bob@example.com", Role: models.RoleUser, CreatedAt: fixedNow}
	adminUser    = &models.User{ID: 3, Username: "root", Email: "root@example.com", Role: models.RoleAdmin, IsVerified: true, CreatedAt: fixedNow}
)

type fakeResolver struct {
	users map[string]*models.User
	err   error
}

func (f *fakeResolver) Resolve(_ context.Context, credential string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[credential]
	if !ok {
		return nil, common.ErrUnauthenticated
	}
	return u.Clone(), nil
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{users: map[string]*models.User{
		"tok-alice": verifiedUser,
		"tok-bob":   pendingUser,
		"tok-root":  adminUser,
	}}
}

// ---- services ----

type fakeUsers struct {
	registerFn    func(username, email, password string) (*models.User, error)
	loginFn       func(email, password string) (*services.TokenPair, error)
	refreshErr    error
	verifyErr     error
	resendErr     error
	forgotErr     error
	checkResetErr error
	resetErr      error
	profileErr    error
	avatarErr     error
	roleErr       error

	lastEmail       string
	lastToken       string
	lastPassword    string
	lastUsername    *string
	lastContentType string
	lastAvatar      []byte
	lastTarget      int64
	lastRole        models.Role
}

func (f *fakeUsers) Register(_ context.Context, username, email, password string) (*models.User, error) {
	if f.registerFn != nil {
		return f.registerFn(username, email, password)
	}
	return &models.User{ID: 10, Username: username, Email: email, Role: models.RoleUser, CreatedAt: fixedNow}, nil
}

func (f *fakeUsers) Login(_ context.Context, email, password string) (*services.TokenPair, error) {
	if f.loginFn != nil {
		return f.loginFn(email, password)
	}
	return &services.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeUsers) RefreshToken(_ context.Context, token string) (*services.TokenPair, error) {
	f.lastToken = token
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &services.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (f *fakeUsers) VerifyEmail(_ context.Context, token string) (*models.User, error) {
	f.lastToken = token
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return verifiedUser.Clone(), nil
}

func (f *fakeUsers) ResendVerification(_ context.Context, email string) error {
	f.lastEmail = email
	return f.resendErr
}

func (f *fakeUsers) ForgotPassword(_ context.Context, email string) error {
	f.lastEmail = email
	return f.forgotErr
}

func (f *fakeUsers) VerifyResetToken(_ context.Context, token string) error {
	f.lastToken = token
	return f.checkResetErr
}

func (f *fakeUsers) ResetPassword(_ context.Context, token, newPassword string) error {
	f.lastToken, f.lastPassword = token, newPassword
	return f.resetErr
}

func (f *fakeUsers) UpdateProfile(_ context.Context, actor *models.User, username *string) (*models.User, error) {
	f.lastUsername = username
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	u := actor.Clone()
	if username != nil {
		u.Username = *username
	}
	return u, nil
}

func (f *fakeUsers) UpdateAvatar(_ context.Context, actor *models.User, contentType string, body []byte) (*models.User, error) {
	f.lastContentType, f.lastAvatar = contentType, body
	if f.avatarErr != nil {
		return nil, f.avatarErr
	}
	u := actor.Clone()
	u.AvatarURL = "http://cdn.local/avatars/users/3/a.png"
	return u, nil
}

func (f *fakeUsers) ChangeRole(_ context.Context, actor *models.User, targetID int64, role models.Role) (*models.User, error) {
	f.lastTarget, f.lastRole = targetID, role
	if f.roleErr != nil {
		return nil, f.roleErr
	}
	return &models.User{ID: targetID, Username: "target", Email: "t@example.com", Role: role, IsVerified: true}, nil
}

type fakeContacts struct {
	byID       map[int64]*models.Contact
	err        error
	lastOwner  int64
	lastFilter contacts.ListFilter
	lastInput  services.ContactInput
	lastPatch  services.ContactPatch
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{byID: map[int64]*models.Contact{
		7: {
			ID: 7, FirstName: "Jane", LastName: "Doe", Email: "jane@example.com",
			PhoneNumber: "+380501234567", BirthDate: time.Date(1990, time.June, 12, 0, 0, 0, 0, time.UTC),
			OwnerID: verifiedUser.ID, CreatedAt: fixedNow, UpdatedAt: fixedNow,
		},
	}}
}

func (f *fakeContacts) find(ownerID, id int64) (*models.Contact, error) {
	c, ok := f.byID[id]
	if !ok || c.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

func (f *fakeContacts) Create(_ context.Context, ownerID int64, in services.ContactInput) (*models.Contact, error) {
	f.lastOwner, f.lastInput = ownerID, in
	if f.err != nil {
		return nil, f.err
	}
	return &models.Contact{
		ID: 8, FirstName: in.FirstName, LastName: in.LastName, Email: in.Email,
		PhoneNumber: in.PhoneNumber, BirthDate: in.BirthDate, AdditionalData: in.AdditionalData,
		OwnerID: ownerID, CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}, nil
}

func (f *fakeContacts) Get(_ context.Context, ownerID, id int64) (*models.Contact, error) {
	f.lastOwner = ownerID
	return f.find(ownerID, id)
}

func (f *fakeContacts) List(_ context.Context, ownerID int64, flt contacts.ListFilter) ([]*models.Contact, error) {
	f.lastOwner, f.lastFilter = ownerID, flt
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Contact
	for _, c := range f.byID {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContacts) Update(_ context.Context, ownerID, id int64, p services.ContactPatch) (*models.Contact, error) {
	f.lastOwner, f.lastPatch = ownerID, p
	c, err := f.find(ownerID, id)
	if err != nil {
		return nil, err
	}
	cp := *c
	if p.FirstName != nil {
		cp.FirstName = *p.FirstName
	}
	return &cp, nil
}

func (f *fakeContacts) Delete(_ context.Context, ownerID, id int64) error {
	f.lastOwner = ownerID
	_, err := f.find(ownerID, id)
	return err
}

func (f *fakeContacts) UpcomingBirthdays(ctx context.Context, ownerID int64) ([]*models.Contact, error) {
	return f.List(ctx, ownerID, contacts.ListFilter{})
}

// ---- redis counter ----

type fakeCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
	// failExpire makes that many upcoming Expire calls fail.
	failExpire  int
	expireCalls int
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (c *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewIntResult(0, c.err)
	}
	c.counts[key]++
	return redis.NewIntResult(c.counts[key], nil)
}

func (c *fakeCounter) Expire(_ context.Context, key string, d time.Duration) *redis.BoolCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireCalls++
	if c.failExpire > 0 {
		c.failExpire--
		return redis.NewBoolResult(false, errors.New("redis: i/o timeout"))
	}
	c.expires[key] = d
	return redis.NewBoolResult(true, nil)
}

func (c *fakeCounter) TTL(_ context.Context, key string) *redis.DurationCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.expires[key]
	if !ok {
		return redis.NewDurationResult(-1, nil)
	}
	return redis.NewDurationResult(d, nil)
}

// elapse ends the current window: keys with an expiry vanish, keys without
// one stay, as in Redis.
func (c *fakeCounter) elapse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.expires {
		delete(c.counts, key)
		delete(c.expires, key)
	}
}

// ---- harness ----

type harness struct {
	users    *fakeUsers
	contacts *fakeContacts
	resolver *fakeResolver
	counter  *fakeCounter
	router   http.Handler
}

func newHarness(t *testing.T, rateLimit int) *harness {
	t.Helper()
	h := &harness{
		users:    &fakeUsers{},
		contacts: newFakeContacts(),
		resolver: newFakeResolver(),
		counter:  newFakeCounter(),
	}
	h.router = NewRouter(RouterOptions{
		Users:       h.users,
		Contacts:    h.contacts,
		Resolver:    h.resolver,
		RateLimiter: NewRateLimiter(h.counter, rateLimit, time.Minute, "rate_limit:users_me", time.Second, nopLogger{}),
		Logger:      nopLogger{},
		CORSOrigins: []string{"http://localhost:3000"},
		Now:         func() time.Time { return fixedNow },
	})
	return h
}

// do performs a request; body may be nil, a string or any JSON-encodable value.
func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Detail
}

func messageOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body messageBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Message
}
