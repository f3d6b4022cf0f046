package acl

// Role represents a user's access level for a document.
type Role int

const (
	// Viewer can only read the document and its annotations.
	Viewer Role = iota
	// Commenter can read and create annotations.
	Commenter
	// Owner has full access: read, annotate, and manage the document
	// (replace content, delete the document, moderate annotations).
	Owner
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case Viewer:
		return "viewer"
	case Commenter:
		return "commenter"
	case Owner:
		return "owner"
	default:
		return "unknown"
	}
}

// CanRead returns true if the role allows reading.
func (r Role) CanRead() bool {
	return r >= Viewer
}

// CanAnnotate returns true if the role allows creating annotations.
func (r Role) CanAnnotate() bool {
	return r >= Commenter
}

// CanManage returns true if the role allows managing the document.
func (r Role) CanManage() bool {
	return r >= Owner
}

// Permission represents a user's access to a specific document.
type Permission struct {
	DocID  string
	UserID string
	Role   Role
}
