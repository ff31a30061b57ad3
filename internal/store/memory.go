package store

import (
	"context"
	"sort"
	"sync"

	"github.com/simaland/userapi/types"
)

// MemoryStore is an in-process implementation of the user and session
// repositories with the same constraints as the postgres schema: unique
// logins, unique tokens, one session per user and cascading deletes.
type MemoryStore struct {
	mu          sync.Mutex
	nextID      int
	users       map[int]types.User
	permissions map[int]types.Permission
	sessions    map[int]types.SessionToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:      1,
		users:       make(map[int]types.User),
		permissions: make(map[int]types.Permission),
		sessions:    make(map[int]types.SessionToken),
	}
}

func (m *MemoryStore) Create(ctx context.Context, user types.User, perm *types.Permission) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loginTaken(user.Login, 0) {
		return types.User{}, ErrConflict
	}
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = user

	p := types.Permission{UserID: user.ID}
	if perm != nil {
		p.Blocked = perm.Blocked
		p.IsAdmin = perm.IsAdmin
	}
	m.permissions[user.ID] = p
	return user, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]types.UserView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]types.UserView, 0, len(m.users))
	for id, user := range m.users {
		view := types.UserView{
			ID:        id,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Login:     user.Login,
			BirthDate: user.BirthDate,
			Blocked:   true,
		}
		if p, ok := m.permissions[id]; ok {
			view.Blocked = p.Blocked
			view.IsAdmin = p.IsAdmin
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views, nil
}

func (m *MemoryStore) Update(ctx context.Context, user types.User, change *types.PermissionChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return ErrNotFound
	}
	if m.loginTaken(user.Login, user.ID) {
		return ErrConflict
	}
	m.users[user.ID] = user
	if change == nil {
		return nil
	}
	p, ok := m.permissions[user.ID]
	if !ok {
		p = types.Permission{UserID: user.ID}
	}
	if change.Blocked != nil {
		p.Blocked = *change.Blocked
	}
	if change.IsAdmin != nil {
		p.IsAdmin = *change.IsAdmin
	}
	m.permissions[user.ID] = p
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	delete(m.permissions, id)
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) GetCredentials(ctx context.Context, login string) (types.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, user := range m.users {
		if user.Login != login {
			continue
		}
		creds := types.Credentials{
			UserID:       id,
			Login:        user.Login,
			PasswordHash: user.PasswordHash,
			Blocked:      true,
		}
		if p, ok := m.permissions[id]; ok {
			creds.Blocked = p.Blocked
			creds.IsAdmin = p.IsAdmin
		}
		return creds, nil
	}
	return types.Credentials{}, ErrNotFound
}

func (m *MemoryStore) Replace(ctx context.Context, token types.SessionToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[token.UserID]; !ok {
		return ErrNotFound
	}
	for userID, existing := range m.sessions {
		if userID != token.UserID && existing.Token == token.Token {
			return ErrConflict
		}
	}
	m.sessions[token.UserID] = token
	return nil
}

func (m *MemoryStore) DeleteByToken(ctx context.Context, token string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, existing := range m.sessions {
		if existing.Token == token {
			delete(m.sessions, userID)
			return userID, nil
		}
	}
	return 0, ErrNotFound
}

func (m *MemoryStore) GrantByToken(ctx context.Context, token string) (types.SessionGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, existing := range m.sessions {
		if existing.Token != token {
			continue
		}
		grant := types.SessionGrant{UserID: userID, ExpiresAt: existing.ExpiresAt, Blocked: true}
		if p, ok := m.permissions[userID]; ok {
			grant.Blocked = p.Blocked
			grant.IsAdmin = p.IsAdmin
		}
		return grant, nil
	}
	return types.SessionGrant{}, ErrNotFound
}

// Sessions returns the stored session tokens of a user.
func (m *MemoryStore) Sessions(userID int) []types.SessionToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return []types.SessionToken{s}
	}
	return nil
}

// DropPermission removes a user's permission row, leaving the user in place.
func (m *MemoryStore) DropPermission(userID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.permissions, userID)
}

func (m *MemoryStore) loginTaken(login string, except int) bool {
	for id, user := range m.users {
		if id != except && user.Login == login {
			return true
		}
	}
	return false
}
