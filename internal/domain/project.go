package domain

import (
	"slices"
	"strings"
	"time"
)

// Project represents one tracker project; dependencies and rollups never cross its boundary.
type Project struct {
	ID          string
	Slug        string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ArchivedAt  *time.Time
}

// MemberRole identifies a project member's role.
type MemberRole string

// MemberRole values.
const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleMember MemberRole = "member"
	MemberRoleViewer MemberRole = "viewer"
)

var validMemberRoles = []MemberRole{MemberRoleOwner, MemberRoleMember, MemberRoleViewer}

// ProjectMember links one user to one project.
type ProjectMember struct {
	ProjectID string
	UserID    string
	Role      MemberRole
	CreatedAt time.Time
}

// NewProject constructs a new value for this package.
func NewProject(id, name, description string, now time.Time) (Project, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return Project{}, ErrInvalidID
	}
	if name == "" {
		return Project{}, ErrInvalidName
	}

	return Project{
		ID:          id,
		Slug:        normalizeSlug(name),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// Rename renames the project and refreshes its slug.
func (p *Project) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	p.Name = name
	p.Slug = normalizeSlug(name)
	p.UpdatedAt = now.UTC()
	return nil
}

func (p *Project) Archive(now time.Time) {
	ts := now.UTC()
	p.ArchivedAt = &ts
	p.UpdatedAt = ts
}

func (p *Project) Restore(now time.Time) {
	p.ArchivedAt = nil
	p.UpdatedAt = now.UTC()
}

// NewProjectMember validates one membership row.
func NewProjectMember(projectID, userID string, role MemberRole, now time.Time) (ProjectMember, error) {
	projectID = strings.TrimSpace(projectID)
	userID = strings.TrimSpace(userID)
	if projectID == "" {
		return ProjectMember{}, ErrInvalidID
	}
	if userID == "" {
		return ProjectMember{}, ErrInvalidUserID
	}
	role = MemberRole(strings.TrimSpace(strings.ToLower(string(role))))
	if role == "" {
		role = MemberRoleMember
	}
	if !slices.Contains(validMemberRoles, role) {
		return ProjectMember{}, ErrInvalidRole
	}
	return ProjectMember{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		CreatedAt: now.UTC(),
	}, nil
}

// normalizeSlug lowercases a name and collapses non-alphanumerics into single dashes.
func normalizeSlug(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	var b strings.Builder
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
