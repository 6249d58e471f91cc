package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hylla/tempo/internal/app"
	"github.com/hylla/tempo/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// defaultEventLimit caps change-event listings when the caller passes no limit.
const defaultEventLimit = 50

var memoryDBSeq atomic.Int64

// Repository represents repository data used by this package.
type Repository struct {
	db *sql.DB
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	name := fmt.Sprintf("file:tempo-mem-%d?mode=memory&cache=shared", memoryDBSeq.Add(1))
	db, err := sql.Open(driverName, name)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

// newRepository pins the pool to one connection so guarded edge inserts serialize.
func newRepository(db *sql.DB) (*Repository, error) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			archived_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS project_members (
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			created_at TEXT NOT NULL,
			PRIMARY KEY(project_id, user_id),
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS work_items (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			item_type TEXT NOT NULL DEFAULT 'task',
			status TEXT NOT NULL DEFAULT 'backlog',
			title TEXT NOT NULL,
			assignee_id TEXT NOT NULL DEFAULT '',
			due_at TEXT,
			estimate_minutes INTEGER NOT NULL DEFAULT 0,
			estimate_mode TEXT NOT NULL DEFAULT 'manual',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT,
			archived_at TEXT,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		// Edge endpoints are not foreign keys; the integrity report checks them.
		`CREATE TABLE IF NOT EXISTS dependencies (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			depends_on_id TEXT NOT NULL,
			dep_type TEXT NOT NULL DEFAULT 'FS',
			lag_minutes INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			UNIQUE(item_id, depends_on_id),
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS scheduled_blocks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			start_at TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS time_entries (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			minutes INTEGER NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS blockers (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			created_at TEXT NOT NULL,
			resolved_at TEXT,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL,
			work_item_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_project_parent ON work_items(project_id, parent_id);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_assignee ON work_items(assignee_id);`,
		`CREATE INDEX IF NOT EXISTS idx_dependencies_project ON dependencies(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_blocks_project_item ON scheduled_blocks(project_id, item_id, start_at);`,
		`CREATE INDEX IF NOT EXISTS idx_time_entries_project_item ON time_entries(project_id, item_id);`,
		`CREATE INDEX IF NOT EXISTS idx_blockers_project_item ON blockers(project_id, item_id);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_project_created_at ON change_events(project_id, created_at DESC, id DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside one transaction and commits when it returns nil.
func (r *Repository) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// CreateProject creates project.
func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects(id, slug, name, description, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Slug, p.Name, p.Description, ts(p.CreatedAt), ts(p.UpdatedAt), nullableTS(p.ArchivedAt))
	return err
}

// UpdateProject updates state for the requested operation.
func (r *Repository) UpdateProject(ctx context.Context, p domain.Project) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects
		SET slug = ?, name = ?, description = ?, updated_at = ?, archived_at = ?
		WHERE id = ?
	`, p.Slug, p.Name, p.Description, ts(p.UpdatedAt), nullableTS(p.ArchivedAt), p.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetProject returns project.
func (r *Repository) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, created_at, updated_at, archived_at
		FROM projects
		WHERE id = ?
	`, id)
	return scanProject(row)
}

// ListProjects lists projects.
func (r *Repository) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	query := `
		SELECT id, slug, name, description, created_at, updated_at, archived_at
		FROM projects
	`
	if !includeArchived {
		query += ` WHERE archived_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertProjectMember inserts or replaces one membership row.
func (r *Repository) UpsertProjectMember(ctx context.Context, m domain.ProjectMember) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO project_members(project_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, user_id) DO UPDATE SET role = excluded.role
	`, m.ProjectID, m.UserID, string(m.Role), ts(m.CreatedAt))
	return err
}

// ListProjectMembers lists one project's members ordered by user id.
func (r *Repository) ListProjectMembers(ctx context.Context, projectID string) ([]domain.ProjectMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT project_id, user_id, role, created_at
		FROM project_members
		WHERE project_id = ?
		ORDER BY user_id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ProjectMember{}
	for rows.Next() {
		var (
			m          domain.ProjectMember
			role       string
			createdRaw string
		)
		if err := rows.Scan(&m.ProjectID, &m.UserID, &role, &createdRaw); err != nil {
			return nil, err
		}
		m.Role = domain.MemberRole(role)
		m.CreatedAt = parseTS(createdRaw)
		out = append(out, m)
	}
	return out, rows.Err()
}

const workItemColumns = `id, project_id, parent_id, item_type, status, title, assignee_id, due_at, estimate_minutes,
	estimate_mode, created_at, updated_at, completed_at, archived_at`

// CreateWorkItem creates a work item and records it in the change ledger.
func (r *Repository) CreateWorkItem(ctx context.Context, item domain.WorkItem) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO work_items(`+workItemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			item.ID,
			item.ProjectID,
			item.ParentID,
			string(item.Type),
			string(item.Status),
			item.Title,
			item.AssigneeID,
			nullableTS(item.DueAt),
			item.EstimateMinutes,
			string(item.EstimateMode),
			ts(item.CreatedAt),
			ts(item.UpdatedAt),
			nullableTS(item.CompletedAt),
			nullableTS(item.ArchivedAt),
		)
		if err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  item.ProjectID,
			WorkItemID: item.ID,
			Operation:  domain.ChangeOperationCreate,
			ActorID:    app.ActorID(ctx),
			Metadata: map[string]string{
				"parent_id": item.ParentID,
				"title":     item.Title,
				"type":      string(item.Type),
			},
			OccurredAt: item.CreatedAt,
		})
	})
}

// UpdateWorkItem replaces a work item and classifies the change for the ledger.
func (r *Repository) UpdateWorkItem(ctx context.Context, item domain.WorkItem) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := getWorkItemByID(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE work_items
			SET parent_id = ?, item_type = ?, status = ?, title = ?, assignee_id = ?, due_at = ?, estimate_minutes = ?,
			    estimate_mode = ?, updated_at = ?, completed_at = ?, archived_at = ?
			WHERE id = ?
		`,
			item.ParentID,
			string(item.Type),
			string(item.Status),
			item.Title,
			item.AssigneeID,
			nullableTS(item.DueAt),
			item.EstimateMinutes,
			string(item.EstimateMode),
			ts(item.UpdatedAt),
			nullableTS(item.CompletedAt),
			nullableTS(item.ArchivedAt),
			item.ID,
		)
		if err != nil {
			return err
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		op, metadata := classifyItemTransition(prev, item)
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  item.ProjectID,
			WorkItemID: item.ID,
			Operation:  op,
			ActorID:    app.ActorID(ctx),
			Metadata:   metadata,
			OccurredAt: item.UpdatedAt,
		})
	})
}

// GetWorkItem returns one work item.
func (r *Repository) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	return getWorkItemByID(ctx, r.db, id)
}

// ListWorkItems lists one project's work items.
func (r *Repository) ListWorkItems(ctx context.Context, projectID string, includeArchived bool) ([]domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE project_id = ?`
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY id ASC`
	return r.queryWorkItems(ctx, query, projectID)
}

// ListWorkItemsByAssignee lists work items assigned to one user across projects.
func (r *Repository) ListWorkItemsByAssignee(ctx context.Context, assigneeID string, includeArchived bool) ([]domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE assignee_id = ?`
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY project_id ASC, id ASC`
	return r.queryWorkItems(ctx, query, assigneeID)
}

func (r *Repository) queryWorkItems(ctx context.Context, query string, args ...any) ([]domain.WorkItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.WorkItem{}
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// DeleteWorkItem removes an item together with its edges, blocks, time entries, and
// blockers. Children are detached to the root rather than deleted.
func (r *Repository) DeleteWorkItem(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		item, err := getWorkItemByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE item_id = ? OR depends_on_id = ?`, id, id); err != nil {
			return err
		}
		cascade := []string{
			`DELETE FROM scheduled_blocks WHERE item_id = ?`,
			`DELETE FROM time_entries WHERE item_id = ?`,
			`DELETE FROM blockers WHERE item_id = ?`,
			`UPDATE work_items SET parent_id = '' WHERE parent_id = ?`,
		}
		for _, stmt := range cascade {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  item.ProjectID,
			WorkItemID: item.ID,
			Operation:  domain.ChangeOperationDelete,
			ActorID:    app.ActorID(ctx),
			Metadata:   map[string]string{"title": item.Title},
		})
	})
}

const dependencyColumns = `id, project_id, item_id, depends_on_id, dep_type, lag_minutes, created_at`

// CreateDependencyChecked runs check against the project's current edges and inserts
// dep in the same transaction.
func (r *Repository) CreateDependencyChecked(ctx context.Context, dep domain.Dependency, check app.DependencyCheck) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := listDependencies(ctx, tx, dep.ProjectID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(existing); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO dependencies(`+dependencyColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, dep.ID, dep.ProjectID, dep.ItemID, dep.DependsOnID, string(dep.Type), dep.LagMinutes, ts(dep.CreatedAt))
		if err != nil {
			if isUniqueConstraintErr(err) {
				return domain.ErrDuplicateDependency
			}
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  dep.ProjectID,
			WorkItemID: dep.ItemID,
			Operation:  domain.ChangeOperationDependencyAdd,
			ActorID:    app.ActorID(ctx),
			Metadata:   dep.ChangeMetadata(),
			OccurredAt: dep.CreatedAt,
		})
	})
}

// GetDependency returns one edge.
func (r *Repository) GetDependency(ctx context.Context, id string) (domain.Dependency, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+dependencyColumns+` FROM dependencies WHERE id = ?`, id)
	return scanDependency(row)
}

// DeleteDependency removes one edge.
func (r *Repository) DeleteDependency(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		dep, err := scanDependency(tx.QueryRowContext(ctx, `SELECT `+dependencyColumns+` FROM dependencies WHERE id = ?`, id))
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  dep.ProjectID,
			WorkItemID: dep.ItemID,
			Operation:  domain.ChangeOperationDependencyDrop,
			ActorID:    app.ActorID(ctx),
			Metadata:   dep.ChangeMetadata(),
		})
	})
}

// ListDependencies lists one project's edges.
func (r *Repository) ListDependencies(ctx context.Context, projectID string) ([]domain.Dependency, error) {
	return listDependencies(ctx, r.db, projectID)
}

// queryer represents a multi-row query contract used by DB and Tx implementations.
type queryer interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

func listDependencies(ctx context.Context, q queryer, projectID string) ([]domain.Dependency, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+dependencyColumns+`
		FROM dependencies
		WHERE project_id = ?
		ORDER BY item_id ASC, depends_on_id ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Dependency{}
	for rows.Next() {
		dep, err := scanDependency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}

const blockColumns = `id, project_id, item_id, start_at, duration_minutes, created_at, updated_at`

// CreateScheduledBlock creates a block.
func (r *Repository) CreateScheduledBlock(ctx context.Context, b domain.ScheduledBlock) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scheduled_blocks(`+blockColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, b.ID, b.ProjectID, b.ItemID, ts(b.StartAt), b.DurationMinutes, ts(b.CreatedAt), ts(b.UpdatedAt))
		if err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, blockEvent(ctx, b, domain.ChangeOperationSchedule, b.CreatedAt))
	})
}

// UpdateScheduledBlock moves or resizes a block.
func (r *Repository) UpdateScheduledBlock(ctx context.Context, b domain.ScheduledBlock) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE scheduled_blocks
			SET start_at = ?, duration_minutes = ?, updated_at = ?
			WHERE id = ?
		`, ts(b.StartAt), b.DurationMinutes, ts(b.UpdatedAt), b.ID)
		if err != nil {
			return err
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, blockEvent(ctx, b, domain.ChangeOperationSchedule, b.UpdatedAt))
	})
}

// GetScheduledBlock returns one block.
func (r *Repository) GetScheduledBlock(ctx context.Context, id string) (domain.ScheduledBlock, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM scheduled_blocks WHERE id = ?`, id)
	return scanBlock(row)
}

// DeleteScheduledBlock removes one block.
func (r *Repository) DeleteScheduledBlock(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		b, err := scanBlock(tx.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM scheduled_blocks WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_blocks WHERE id = ?`, id); err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  b.ProjectID,
			WorkItemID: b.ItemID,
			Operation:  domain.ChangeOperationUnschedule,
			ActorID:    app.ActorID(ctx),
			Metadata:   b.ChangeMetadata(),
		})
	})
}

// ListScheduledBlocks lists one project's blocks ordered by start.
func (r *Repository) ListScheduledBlocks(ctx context.Context, projectID string) ([]domain.ScheduledBlock, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+blockColumns+`
		FROM scheduled_blocks
		WHERE project_id = ?
		ORDER BY start_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ScheduledBlock{}
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func blockEvent(ctx context.Context, b domain.ScheduledBlock, op domain.ChangeOperation, at time.Time) domain.ChangeEvent {
	return domain.ChangeEvent{
		ProjectID:  b.ProjectID,
		WorkItemID: b.ItemID,
		Operation:  op,
		ActorID:    app.ActorID(ctx),
		Metadata:   b.ChangeMetadata(),
		OccurredAt: at,
	}
}

// CreateTimeEntry records effort.
func (r *Repository) CreateTimeEntry(ctx context.Context, e domain.TimeEntry) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO time_entries(id, project_id, item_id, user_id, started_at, minutes, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.ProjectID, e.ItemID, e.UserID, ts(e.StartedAt), e.Minutes, e.Note, ts(e.CreatedAt))
		if err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  e.ProjectID,
			WorkItemID: e.ItemID,
			Operation:  domain.ChangeOperationTimeLogged,
			ActorID:    app.ActorID(ctx),
			Metadata:   e.ChangeMetadata(),
			OccurredAt: e.CreatedAt,
		})
	})
}

// ListTimeEntries lists one project's time entries.
func (r *Repository) ListTimeEntries(ctx context.Context, projectID string) ([]domain.TimeEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, item_id, user_id, started_at, minutes, note, created_at
		FROM time_entries
		WHERE project_id = ?
		ORDER BY started_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.TimeEntry{}
	for rows.Next() {
		var (
			e          domain.TimeEntry
			startedRaw string
			createdRaw string
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.ItemID, &e.UserID, &startedRaw, &e.Minutes, &e.Note, &createdRaw); err != nil {
			return nil, err
		}
		e.StartedAt = parseTS(startedRaw)
		e.CreatedAt = parseTS(createdRaw)
		out = append(out, e)
	}
	return out, rows.Err()
}

const blockerColumns = `id, project_id, item_id, reason, created_at, resolved_at`

// CreateBlocker raises a blocker.
func (r *Repository) CreateBlocker(ctx context.Context, b domain.Blocker) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO blockers(`+blockerColumns+`)
			VALUES (?, ?, ?, ?, ?, ?)
		`, b.ID, b.ProjectID, b.ItemID, b.Reason, ts(b.CreatedAt), nullableTS(b.ResolvedAt))
		if err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  b.ProjectID,
			WorkItemID: b.ItemID,
			Operation:  domain.ChangeOperationBlockerRaised,
			ActorID:    app.ActorID(ctx),
			Metadata:   b.ChangeMetadata(),
			OccurredAt: b.CreatedAt,
		})
	})
}

// UpdateBlocker stores a blocker's resolution state.
func (r *Repository) UpdateBlocker(ctx context.Context, b domain.Blocker) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE blockers SET reason = ?, resolved_at = ? WHERE id = ?
		`, b.Reason, nullableTS(b.ResolvedAt), b.ID)
		if err != nil {
			return err
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		if b.ResolvedAt == nil {
			return nil
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  b.ProjectID,
			WorkItemID: b.ItemID,
			Operation:  domain.ChangeOperationBlockerResolved,
			ActorID:    app.ActorID(ctx),
			Metadata:   b.ChangeMetadata(),
			OccurredAt: *b.ResolvedAt,
		})
	})
}

// GetBlocker returns one blocker.
func (r *Repository) GetBlocker(ctx context.Context, id string) (domain.Blocker, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+blockerColumns+` FROM blockers WHERE id = ?`, id)
	return scanBlocker(row)
}

// ListBlockers lists one project's blockers.
func (r *Repository) ListBlockers(ctx context.Context, projectID string) ([]domain.Blocker, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+blockerColumns+`
		FROM blockers
		WHERE project_id = ?
		ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Blocker{}
	for rows.Next() {
		b, err := scanBlocker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListProjectChangeEvents lists recent project events for activity-log consumption.
func (r *Repository) ListProjectChangeEvents(ctx context.Context, projectID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, work_item_id, operation, actor_id, metadata_json, created_at
		FROM change_events
		WHERE project_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			opRaw       string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &event.ProjectID, &event.WorkItemID, &opRaw, &event.ActorID, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.Operation = normalizeChangeOperation(opRaw)
		event.OccurredAt = parseTS(createdRaw)
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// queryRower represents a query-only DB contract used by DB and Tx implementations.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// getWorkItemByID returns a work item through either the pool or an open transaction.
func getWorkItemByID(ctx context.Context, q queryRower, id string) (domain.WorkItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id = ?`, id)
	return scanWorkItem(row)
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// insertChangeEvent inserts a change-event ledger record.
func insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(project_id, work_item_id, operation, actor_id, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.ProjectID,
		event.WorkItemID,
		string(event.Operation),
		chooseActorID(event.ActorID, app.DefaultActorID),
		string(metadataJSON),
		ts(normalizeEventTS(event.OccurredAt)),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// classifyItemTransition derives the best operation category and metadata for an item update.
func classifyItemTransition(prev, next domain.WorkItem) (domain.ChangeOperation, map[string]string) {
	if prev.ArchivedAt == nil && next.ArchivedAt != nil {
		return domain.ChangeOperationArchive, map[string]string{"status": string(next.Status)}
	}
	if prev.ParentID != next.ParentID {
		return domain.ChangeOperationReparent, map[string]string{
			"from_parent_id": prev.ParentID,
			"to_parent_id":   next.ParentID,
		}
	}
	metadata := map[string]string{}
	if prev.Status != next.Status {
		metadata["from_status"] = string(prev.Status)
		metadata["to_status"] = string(next.Status)
	}
	if fields := changedItemFields(prev, next); len(fields) > 0 {
		metadata["changed_fields"] = strings.Join(fields, ",")
	}
	return domain.ChangeOperationUpdate, metadata
}

// changedItemFields lists editable fields that differ between two item revisions.
func changedItemFields(prev, next domain.WorkItem) []string {
	fields := make([]string, 0, 6)
	if prev.Title != next.Title {
		fields = append(fields, "title")
	}
	if prev.Type != next.Type {
		fields = append(fields, "type")
	}
	if prev.AssigneeID != next.AssigneeID {
		fields = append(fields, "assignee_id")
	}
	if !equalNullableTimes(prev.DueAt, next.DueAt) {
		fields = append(fields, "due_at")
	}
	if prev.EstimateMinutes != next.EstimateMinutes {
		fields = append(fields, "estimate_minutes")
	}
	if prev.EstimateMode != next.EstimateMode {
		fields = append(fields, "estimate_mode")
	}
	if prev.ArchivedAt != nil && next.ArchivedAt == nil {
		fields = append(fields, "archived_at")
	}
	return fields
}

func equalNullableTimes(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// chooseActorID returns the first non-empty actor id or the default local actor.
func chooseActorID(candidates ...string) string {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" {
			return candidate
		}
	}
	return app.DefaultActorID
}

// normalizeChangeOperation canonicalizes persisted operation values.
func normalizeChangeOperation(raw string) domain.ChangeOperation {
	op := domain.ChangeOperation(strings.TrimSpace(strings.ToLower(raw)))
	switch op {
	case domain.ChangeOperationCreate,
		domain.ChangeOperationUpdate,
		domain.ChangeOperationReparent,
		domain.ChangeOperationArchive,
		domain.ChangeOperationDelete,
		domain.ChangeOperationDependencyAdd,
		domain.ChangeOperationDependencyDrop,
		domain.ChangeOperationSchedule,
		domain.ChangeOperationUnschedule,
		domain.ChangeOperationTimeLogged,
		domain.ChangeOperationBlockerRaised,
		domain.ChangeOperationBlockerResolved:
		return op
	default:
		return domain.ChangeOperationUpdate
	}
}

// normalizeEventTS ensures event timestamps are always populated and UTC-normalized.
func normalizeEventTS(in time.Time) time.Time {
	if in.IsZero() {
		return time.Now().UTC()
	}
	return in.UTC()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanProject handles scan project.
func scanProject(s scanner) (domain.Project, error) {
	var (
		p          domain.Project
		createdRaw string
		updatedRaw string
		archived   sql.NullString
	)
	if err := s.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &createdRaw, &updatedRaw, &archived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, app.ErrNotFound
		}
		return domain.Project{}, err
	}
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	p.ArchivedAt = parseNullTS(archived)
	return p, nil
}

// scanWorkItem handles scan work item.
func scanWorkItem(s scanner) (domain.WorkItem, error) {
	var (
		item       domain.WorkItem
		itemType   string
		status     string
		mode       string
		dueRaw     sql.NullString
		createdRaw string
		updatedRaw string
		completed  sql.NullString
		archived   sql.NullString
	)
	if err := s.Scan(
		&item.ID,
		&item.ProjectID,
		&item.ParentID,
		&itemType,
		&status,
		&item.Title,
		&item.AssigneeID,
		&dueRaw,
		&item.EstimateMinutes,
		&mode,
		&createdRaw,
		&updatedRaw,
		&completed,
		&archived,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WorkItem{}, app.ErrNotFound
		}
		return domain.WorkItem{}, err
	}
	item.Type = domain.ItemType(itemType)
	item.Status = domain.ItemStatus(status)
	item.EstimateMode = domain.EstimateMode(mode)
	item.DueAt = parseNullTS(dueRaw)
	item.CreatedAt = parseTS(createdRaw)
	item.UpdatedAt = parseTS(updatedRaw)
	item.CompletedAt = parseNullTS(completed)
	item.ArchivedAt = parseNullTS(archived)
	return item, nil
}

// scanDependency handles scan dependency.
func scanDependency(s scanner) (domain.Dependency, error) {
	var (
		dep        domain.Dependency
		depType    string
		createdRaw string
	)
	if err := s.Scan(&dep.ID, &dep.ProjectID, &dep.ItemID, &dep.DependsOnID, &depType, &dep.LagMinutes, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Dependency{}, app.ErrNotFound
		}
		return domain.Dependency{}, err
	}
	dep.Type = domain.DependencyType(depType)
	dep.CreatedAt = parseTS(createdRaw)
	return dep, nil
}

// scanBlock handles scan block.
func scanBlock(s scanner) (domain.ScheduledBlock, error) {
	var (
		b          domain.ScheduledBlock
		startRaw   string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&b.ID, &b.ProjectID, &b.ItemID, &startRaw, &b.DurationMinutes, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ScheduledBlock{}, app.ErrNotFound
		}
		return domain.ScheduledBlock{}, err
	}
	b.StartAt = parseTS(startRaw)
	b.CreatedAt = parseTS(createdRaw)
	b.UpdatedAt = parseTS(updatedRaw)
	return b, nil
}

// scanBlocker handles scan blocker.
func scanBlocker(s scanner) (domain.Blocker, error) {
	var (
		b          domain.Blocker
		createdRaw string
		resolved   sql.NullString
	)
	if err := s.Scan(&b.ID, &b.ProjectID, &b.ItemID, &b.Reason, &createdRaw, &resolved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Blocker{}, app.ErrNotFound
		}
		return domain.Blocker{}, err
	}
	b.CreatedAt = parseTS(createdRaw)
	b.ResolvedAt = parseNullTS(resolved)
	return b, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}

// isUniqueConstraintErr reports whether err is a UNIQUE constraint violation.
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
