package acl

import "sync"

// MemoryStore is an in-memory implementation of the permission Store.
type MemoryStore struct {
	mu sync.RWMutex

	// permissions maps docID -> userID -> role
	permissions map[string]map[string]Role
}

// NewMemoryStore creates a new in-memory permission store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		permissions: make(map[string]map[string]Role),
	}
}

// Grant gives a user a specific role on a document.
func (m *MemoryStore) Grant(docID, userID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.permissions[docID] == nil {
		m.permissions[docID] = make(map[string]Role)
	}

	m.permissions[docID][userID] = role

	return nil
}

// Revoke removes a user's permission on a document.
func (m *MemoryStore) Revoke(docID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.permissions[docID]
	if !ok {
		return ErrPermissionNotFound
	}

	if _, ok := users[userID]; !ok {
		return ErrPermissionNotFound
	}

	delete(users, userID)

	if len(users) == 0 {
		delete(m.permissions, docID)
	}

	return nil
}

// GetRole returns the user's role for a document.
func (m *MemoryStore) GetRole(docID, userID string) (Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users, ok := m.permissions[docID]
	if !ok {
		return 0, ErrPermissionNotFound
	}

	role, ok := users[userID]
	if !ok {
		return 0, ErrPermissionNotFound
	}

	return role, nil
}

// ListPermissions returns all permissions for a document.
func (m *MemoryStore) ListPermissions(docID string) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users, ok := m.permissions[docID]
	if !ok {
		return nil, nil
	}

	perms := make([]Permission, 0, len(users))

	for userID, role := range users {
		perms = append(perms, Permission{
			DocID:  docID,
			UserID: userID,
			Role:   role,
		})
	}

	return perms, nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
