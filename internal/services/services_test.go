package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/simaland/userapi/internal/auth"
	"github.com/simaland/userapi/internal/store"
	"github.com/simaland/userapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin   = auth.Context{IsAdmin: true}
	regular = auth.Context{}
	blocked = auth.Context{Blocked: true, IsAdmin: true}
)

type recordingPublisher struct {
	mu       sync.Mutex
	events   []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, attrs["type"])
	p.payloads = append(p.payloads, data)
	return "id", p.err
}

// published decodes every recorded event of the given type.
func (p *recordingPublisher) published(t *testing.T, eventType string) []types.Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []types.Event
	for i, data := range p.payloads {
		if p.events[i] != eventType {
			continue
		}
		var event types.Event
		require.NoError(t, json.Unmarshal(data, &event))
		out = append(out, event)
	}
	return out
}

func (p *recordingPublisher) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fixture struct {
	store  *store.MemoryStore
	hasher *auth.Hasher
	now    time.Time
	pub    *recordingPublisher
	auth   *AuthService
	users  *UserService
}

func newFixture(t *testing.T, policy AuthPolicy) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMemoryStore(),
		hasher: auth.NewHasher([]byte("test-salt"), 10),
		now:    time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC),
		pub:    &recordingPublisher{},
	}
	tokens := auth.NewTokenGenerator(f.hasher, 24*time.Hour, func() time.Time { return f.now })
	events := NewEvents(f.pub, "events")
	f.auth = NewAuthService(f.store, f.store, f.hasher, tokens, policy, events, nil)
	f.users = NewUserService(f.store, f.hasher, events, nil)
	return f
}

func defaultPolicy() AuthPolicy {
	return AuthPolicy{DenyBlockedLogin: true, EnforceTokenExpiry: true}
}

func boolPtr(v bool) *bool { return &v }

func adminInput(login, password string) UserInput {
	return UserInput{
		FirstName: "admin",
		LastName:  "admin",
		Login:     login,
		Password:  password,
		BirthDate: "1970-01-01",
		IsAdmin:   boolPtr(true),
	}
}

func TestLoginSucceedsWithValidCredentials(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	_, err := f.users.Create(ctx, admin, adminInput("admin", "admin"))
	require.NoError(t, err)

	token, err := f.auth.Login(ctx, LoginRequest{Login: "admin", Password: "admin"})
	require.NoError(t, err)
	assert.Len(t, token.Token, 64)
	assert.Equal(t, f.now.Add(24*time.Hour).Unix(), token.ExpiresAt)

	ac := f.auth.Authorize(ctx, token.Token)
	assert.Equal(t, auth.Context{Blocked: false, IsAdmin: true}, ac)
	assert.Contains(t, f.pub.seen(), types.EventSessionLogin)
}

func TestLoginRejectsWrongPasswordAndUnknownLogin(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	_, err := f.users.Create(ctx, admin, adminInput("admin", "admin"))
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, LoginRequest{Login: "admin", Password: "wrong"})
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = f.auth.Login(ctx, LoginRequest{Login: "nobody", Password: "admin"})
	assert.Equal(t, KindForbidden, KindOf(err), "unknown logins are indistinguishable from bad passwords")

	_, err = f.auth.Login(ctx, LoginRequest{Login: "admin"})
	assert.Equal(t, KindForbidden, KindOf(err), "an empty password is a failed login")

	_, err = f.auth.Login(ctx, LoginRequest{Password: "admin"})
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestLoginStoresPasswordHashNotPlaintext(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	_, err := f.users.Create(ctx, admin, adminInput("ada", "s3cret"))
	require.NoError(t, err)

	creds, err := f.store.GetCredentials(ctx, "ada")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", creds.PasswordHash)
	assert.Equal(t, f.hasher.Hash("s3cret"), creds.PasswordHash)
}

func TestSuccessiveLoginsKeepOneToken(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	created, err := f.users.Create(ctx, admin, adminInput("admin", "admin"))
	require.NoError(t, err)

	first, err := f.auth.Login(ctx, LoginRequest{Login: "admin", Password: "admin"})
	require.NoError(t, err)
	second, err := f.auth.Login(ctx, LoginRequest{Login: "admin", Password: "admin"})
	require.NoError(t, err)

	sessions := f.store.Sessions(created.ID)
	require.Len(t, sessions, 1)
	assert.Equal(t, second.Token, sessions[0].Token)
	assert.Equal(t, auth.FailClosed(), f.auth.Authorize(ctx, first.Token))
}

func TestConcurrentLoginsKeepOneToken(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	created, err := f.users.Create(ctx, admin, adminInput("admin", "admin"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.auth.Login(ctx, LoginRequest{Login: "admin", Password: "admin"})
		}()
	}
	wg.Wait()

	assert.Len(t, f.store.Sessions(created.ID), 1)
}

func TestLoginBlockedUserPolicy(t *testing.T) {
	in := adminInput("blocked", "pw")
	in.Blocked = boolPtr(true)

	deny := newFixture(t, defaultPolicy())
	_, err := deny.users.Create(context.Background(), admin, in)
	require.NoError(t, err)
	_, err = deny.auth.Login(context.Background(), LoginRequest{Login: "blocked", Password: "pw"})
	assert.Equal(t, KindForbidden, KindOf(err))

	allow := newFixture(t, AuthPolicy{DenyBlockedLogin: false, EnforceTokenExpiry: true})
	_, err = allow.users.Create(context.Background(), admin, in)
	require.NoError(t, err)
	token, err := allow.auth.Login(context.Background(), LoginRequest{Login: "blocked", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, auth.Context{Blocked: true, IsAdmin: true}, allow.auth.Authorize(context.Background(), token.Token))
}

type conflictingSessions struct {
	*store.MemoryStore
}

func (c conflictingSessions) Replace(ctx context.Context, token types.SessionToken) error {
	return store.ErrConflict
}

func TestLoginTokenConflict(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	_, err := f.users.Create(ctx, admin, adminInput("admin", "admin"))
	require.NoError(t, err)

	tokens := auth.NewTokenGenerator(f.hasher, time.Hour, nil)
	svc := NewAuthService(f.store, conflictingSessions{f.store}, f.hasher, tokens, defaultPolicy(), nil, nil)

	_, err = svc.Login(ctx, LoginRequest{Login: "admin", Password: "admin"})
	assert.Equal(t, KindConflict, KindOf(err))
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestAuthorizeFailsClosed(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()

	assert.Equal(t, auth.FailClosed(), f.auth.Authorize(ctx, ""))
	assert.Equal(t, auth.FailClosed(), f.auth.Authorize(ctx, "no-such-token"))
}

func TestAuthorizeWithoutPermissionRowFailsClosed(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	created, err := f.users.Create(ctx, admin, adminInput("admin", "admin"))
	require.NoError(t, err)
	token, err := f.auth.Login(ctx, LoginRequest{Login: "admin", Password: "admin"})
	require.NoError(t, err)

	f.store.DropPermission(created.ID)
	assert.Equal(t, auth.FailClosed(), f.auth.Authorize(ctx, token.Token))
}

func TestAuthorizeExpiryIsEnforced(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	_, err := f.users.Create(ctx, admin, adminInput("admin", "admin"))
	require.NoError(t, err)
	token, err := f.auth.Login(ctx, LoginRequest{Login: "admin", Password: "admin"})
	require.NoError(t, err)

	f.now = f.now.Add(24*time.Hour - time.Second)
	assert.Equal(t, admin, f.auth.Authorize(ctx, token.Token))

	f.now = f.now.Add(time.Second)
	assert.Equal(t, auth.FailClosed(), f.auth.Authorize(ctx, token.Token))
}

func TestAuthorizeExpiryCanBeIgnored(t *testing.T) {
	f := newFixture(t, AuthPolicy{DenyBlockedLogin: true, EnforceTokenExpiry: false})
	ctx := context.Background()
	_, err := f.users.Create(ctx, admin, adminInput("admin", "admin"))
	require.NoError(t, err)
	token, err := f.auth.Login(ctx, LoginRequest{Login: "admin", Password: "admin"})
	require.NoError(t, err)

	f.now = f.now.Add(48 * time.Hour)
	assert.Equal(t, admin, f.auth.Authorize(ctx, token.Token))
}

func TestLogout(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	_, err := f.users.Create(ctx, admin, adminInput("admin", "admin"))
	require.NoError(t, err)
	token, err := f.auth.Login(ctx, LoginRequest{Login: "admin", Password: "admin"})
	require.NoError(t, err)

	assert.Equal(t, KindForbidden, KindOf(f.auth.Logout(ctx, "")))
	require.NoError(t, f.auth.Logout(ctx, token.Token))
	require.NoError(t, f.auth.Logout(ctx, token.Token), "logout is idempotent")
	require.NoError(t, f.auth.Logout(ctx, "never-issued"))
	assert.Equal(t, auth.FailClosed(), f.auth.Authorize(ctx, token.Token))

	logouts := f.pub.published(t, types.EventSessionLogout)
	require.Len(t, logouts, 1, "only the logout that deleted a session is published")
	assert.Equal(t, token.UserID, logouts[0].UserID)
}

func TestUserOperationsPermissionGate(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	in := adminInput("ada", "pw")

	for _, ac := range []auth.Context{regular, blocked, auth.FailClosed()} {
		_, err := f.users.Create(ctx, ac, in)
		assert.Equal(t, KindForbidden, KindOf(err), "create %+v", ac)

		in.ID = 1
		assert.Equal(t, KindForbidden, KindOf(f.users.Update(ctx, ac, in)), "update %+v", ac)
		assert.Equal(t, KindForbidden, KindOf(f.users.Delete(ctx, ac, 1)), "delete %+v", ac)
	}

	_, err := f.users.List(ctx, regular)
	assert.NoError(t, err)
	_, err = f.users.List(ctx, blocked)
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestPermissionCheckedBeforeValidation(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	_, err := f.users.Create(context.Background(), regular, UserInput{})
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()

	cases := map[string]func(in *UserInput){
		"first name": func(in *UserInput) { in.FirstName = " " },
		"last name":  func(in *UserInput) { in.LastName = "" },
		"login":      func(in *UserInput) { in.Login = "" },
		"password":   func(in *UserInput) { in.Password = "" },
		"birth date": func(in *UserInput) { in.BirthDate = "" },
		"bad date":   func(in *UserInput) { in.BirthDate = "01/02/1990" },
		"long first": func(in *UserInput) { in.FirstName = strings.Repeat("a", 201) },
		"long last":  func(in *UserInput) { in.LastName = strings.Repeat("ж", 201) },
		"long login": func(in *UserInput) { in.Login = strings.Repeat("l", 201) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := adminInput("ada", "pw")
			mutate(&in)
			_, err := f.users.Create(ctx, admin, in)
			assert.Equal(t, KindBadRequest, KindOf(err))
		})
	}

	users, err := f.users.List(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, users, "rejected payloads must not write")
}

func TestCreateDuplicateLoginIsConflict(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()

	_, err := f.users.Create(ctx, admin, adminInput("ada", "pw"))
	require.NoError(t, err)
	_, err = f.users.Create(ctx, admin, adminInput("ada", "other"))
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestCreateThenListRoundTrip(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	in := UserInput{FirstName: "Ada", LastName: "Lovelace", Login: "ada", Password: "pw", BirthDate: "1815-12-10"}

	created, err := f.users.Create(ctx, admin, in)
	require.NoError(t, err)

	users, err := f.users.List(ctx, regular)
	require.NoError(t, err)
	require.Len(t, users, 1)
	got := users[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, "Lovelace", got.LastName)
	assert.Equal(t, "ada", got.Login)
	assert.Equal(t, "1815-12-10", got.BirthDate.String())
	assert.False(t, got.Blocked)
	assert.False(t, got.IsAdmin)
	assert.Contains(t, f.pub.seen(), types.EventUserCreated)
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	created, err := f.users.Create(ctx, admin, adminInput("ada", "pw"))
	require.NoError(t, err)
	_, err = f.users.Create(ctx, admin, adminInput("bob", "pw"))
	require.NoError(t, err)

	in := adminInput("ada2", "new-pw")
	in.ID = created.ID
	in.Blocked = boolPtr(true)
	require.NoError(t, f.users.Update(ctx, admin, in))

	creds, err := f.store.GetCredentials(ctx, "ada2")
	require.NoError(t, err)
	assert.True(t, creds.Blocked)
	assert.Equal(t, f.hasher.Hash("new-pw"), creds.PasswordHash)

	in.Login = "bob"
	assert.Equal(t, KindConflict, KindOf(f.users.Update(ctx, admin, in)))

	in.Login = "ada3"
	in.ID = 0
	assert.Equal(t, KindBadRequest, KindOf(f.users.Update(ctx, admin, in)))

	in.ID = 404
	assert.Equal(t, KindNotFound, KindOf(f.users.Update(ctx, admin, in)))
}

func TestCreateAcceptsNamesAtLengthLimit(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	in := adminInput(strings.Repeat("л", 200), "pw")
	in.FirstName = strings.Repeat("я", 200)

	_, err := f.users.Create(context.Background(), admin, in)
	assert.NoError(t, err)
}

func TestUpdateKeepsOmittedPermissionFlag(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	created, err := f.users.Create(ctx, admin, adminInput("ada", "pw"))
	require.NoError(t, err)

	in := adminInput("ada", "pw")
	in.ID = created.ID
	in.IsAdmin = nil
	in.Blocked = boolPtr(true)
	require.NoError(t, f.users.Update(ctx, admin, in))

	creds, err := f.store.GetCredentials(ctx, "ada")
	require.NoError(t, err)
	assert.True(t, creds.Blocked)
	assert.True(t, creds.IsAdmin, "is_admin was not sent and must keep its value")

	in.Blocked = nil
	in.IsAdmin = boolPtr(false)
	require.NoError(t, f.users.Update(ctx, admin, in))

	creds, err = f.store.GetCredentials(ctx, "ada")
	require.NoError(t, err)
	assert.True(t, creds.Blocked, "blocked was not sent and must keep its value")
	assert.False(t, creds.IsAdmin)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	created, err := f.users.Create(ctx, admin, adminInput("ada", "pw"))
	require.NoError(t, err)
	token, err := f.auth.Login(ctx, LoginRequest{Login: "ada", Password: "pw"})
	require.NoError(t, err)

	assert.Equal(t, KindBadRequest, KindOf(f.users.Delete(ctx, admin, 0)))
	require.NoError(t, f.users.Delete(ctx, admin, created.ID))
	assert.Equal(t, KindNotFound, KindOf(f.users.Delete(ctx, admin, created.ID)))
	assert.Equal(t, auth.FailClosed(), f.auth.Authorize(ctx, token.Token), "sessions cascade with the user")
}

func TestEventFailuresDoNotFailOperations(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.pub.err = errors.New("broker down")

	_, err := f.users.Create(context.Background(), admin, adminInput("ada", "pw"))
	assert.NoError(t, err)
}

func TestKindOfAndMessageOf(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "internal server error", MessageOf(errors.New("pq: relation does not exist")))
	assert.Equal(t, "forbidden", MessageOf(forbidden()))
	assert.Equal(t, "conflict", KindConflict.String())
}
