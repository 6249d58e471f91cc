package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	servercommon "github.com/hylla/tempo/internal/adapters/server/common"
	"github.com/hylla/tempo/internal/app"
	"github.com/hylla/tempo/internal/domain"
	"github.com/spf13/cobra"
)

// newProjectCommand groups project and membership commands.
func newProjectCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects and members",
	}

	var description string
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, "project add", func(ctx context.Context, s *session) error {
				project, err := s.svc.CreateProject(ctx, args[0], description)
				if err != nil {
					return err
				}
				return c.printCreated("project", project.ID, map[string]any{"id": project.ID, "slug": project.Slug, "name": project.Name})
			})
		},
	}
	add.Flags().StringVar(&description, "description", "", "project description")

	var includeArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, "project list", func(ctx context.Context, s *session) error {
				projects, err := s.svc.ListProjects(ctx, includeArchived)
				if err != nil {
					return err
				}
				if c.jsonOut {
					rows := make([]map[string]any, 0, len(projects))
					for _, p := range projects {
						rows = append(rows, map[string]any{"id": p.ID, "slug": p.Slug, "name": p.Name, "archived": p.ArchivedAt != nil})
					}
					return writeJSON(c.stdout, map[string]any{"projects": rows})
				}
				return renderProjectTable(c.stdout, projects)
			})
		},
	}
	list.Flags().BoolVar(&includeArchived, "archived", false, "include archived projects")

	var role string
	member := &cobra.Command{
		Use:   "member PROJECT_ID USER_ID",
		Short: "Add or update a project member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, "project member", func(ctx context.Context, s *session) error {
				m, err := s.svc.AddProjectMember(ctx, args[0], args[1], domain.MemberRole(role))
				if err != nil {
					return err
				}
				if c.jsonOut {
					return writeJSON(c.stdout, map[string]any{"project_id": m.ProjectID, "user_id": m.UserID, "role": m.Role})
				}
				_, err = fmt.Fprintf(c.stdout, "%s is %s of %s\n", m.UserID, m.Role, m.ProjectID)
				return err
			})
		},
	}
	member.Flags().StringVar(&role, "role", string(domain.MemberRoleMember), "member role (owner|member|viewer)")

	cmd.AddCommand(add, list, member)
	return cmd
}

// itemFlags holds the editable work-item fields shared by add and update.
type itemFlags struct {
	title        string
	assignee     string
	due          string
	estimate     int
	estimateMode string
}

// bind registers the shared item flags.
func (f *itemFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "item title")
	cmd.Flags().StringVar(&f.assignee, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&f.due, "due", "", "due time (RFC3339)")
	cmd.Flags().IntVar(&f.estimate, "estimate", 0, "estimate in minutes")
	cmd.Flags().StringVar(&f.estimateMode, "estimate-mode", string(domain.EstimateManual), "estimate mode (manual|rollup)")
}

// newItemCommand groups work-item lifecycle commands.
func newItemCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage work items",
	}

	var (
		addFlags  itemFlags
		projectID string
		parentID  string
		itemType  string
		status    string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a work item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			due, err := parseTimeFlag("due", addFlags.due)
			if err != nil {
				return err
			}
			return c.withSession(cmd, "item add", func(ctx context.Context, s *session) error {
				item, err := s.svc.CreateItem(ctx, app.CreateItemInput{
					ProjectID:       projectID,
					ParentID:        parentID,
					Type:            domain.ItemType(itemType),
					Status:          domain.ItemStatus(status),
					Title:           addFlags.title,
					AssigneeID:      addFlags.assignee,
					DueAt:           due,
					EstimateMinutes: addFlags.estimate,
					EstimateMode:    domain.EstimateMode(addFlags.estimateMode),
				})
				if err != nil {
					return err
				}
				return c.printCreated("item", item.ID, map[string]any{"id": item.ID, "project_id": item.ProjectID, "title": item.Title, "status": item.Status})
			})
		},
	}
	addFlags.bind(add)
	add.Flags().StringVar(&projectID, "project", "", "project id")
	add.Flags().StringVar(&parentID, "parent", "", "parent item id")
	add.Flags().StringVar(&itemType, "type", string(domain.ItemTypeTask), "item type (project|milestone|task|subtask)")
	add.Flags().StringVar(&status, "status", string(domain.StatusBacklog), "initial status")
	_ = add.MarkFlagRequired("project")
	_ = add.MarkFlagRequired("title")

	var updateFlags itemFlags
	update := &cobra.Command{
		Use:   "update ITEM_ID",
		Short: "Replace a work item's editable fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := parseTimeFlag("due", updateFlags.due)
			if err != nil {
				return err
			}
			return c.withSession(cmd, "item update", func(ctx context.Context, s *session) error {
				item, err := s.svc.UpdateItem(ctx, app.UpdateItemInput{
					ItemID:          args[0],
					Title:           updateFlags.title,
					AssigneeID:      updateFlags.assignee,
					DueAt:           due,
					EstimateMinutes: updateFlags.estimate,
					EstimateMode:    domain.EstimateMode(updateFlags.estimateMode),
				})
				if err != nil {
					return err
				}
				return c.printUpdated("item", item.ID, string(item.Status))
			})
		},
	}
	updateFlags.bind(update)
	_ = update.MarkFlagRequired("title")

	setStatus := &cobra.Command{
		Use:   "status ITEM_ID STATUS",
		Short: "Set a work item's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, "item status", func(ctx context.Context, s *session) error {
				item, err := s.svc.SetItemStatus(ctx, args[0], domain.ItemStatus(args[1]))
				if err != nil {
					return err
				}
				return c.printUpdated("item", item.ID, string(item.Status))
			})
		},
	}

	reparent := &cobra.Command{
		Use:   "reparent ITEM_ID [PARENT_ID]",
		Short: "Move a work item under a new parent, or to the root when PARENT_ID is omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := ""
			if len(args) == 2 {
				parent = args[1]
			}
			return c.withSession(cmd, "item reparent", func(ctx context.Context, s *session) error {
				item, err := s.svc.ReparentItem(ctx, args[0], parent)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return writeJSON(c.stdout, map[string]any{"id": item.ID, "parent_id": item.ParentID})
				}
				_, err = fmt.Fprintf(c.stdout, "moved %s under %q\n", item.ID, item.ParentID)
				return err
			})
		},
	}

	var mode string
	remove := &cobra.Command{
		Use:   "rm ITEM_ID",
		Short: "Archive or hard-delete a work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, "item rm", func(ctx context.Context, s *session) error {
				if err := s.svc.DeleteItem(ctx, args[0], app.DeleteMode(mode)); err != nil {
					return err
				}
				return c.printRemoved("item", args[0])
			})
		},
	}
	remove.Flags().StringVar(&mode, "mode", "", "delete mode (archive|hard); defaults to config")

	cmd.AddCommand(add, update, setStatus, reparent, remove)
	return cmd
}

// newDependencyCommand groups precedence-edge commands.
func newDependencyCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dep",
		Aliases: []string{"dependency"},
		Short:   "Manage dependency edges",
	}

	var (
		depType string
		lag     int
	)
	add := &cobra.Command{
		Use:   "add ITEM_ID DEPENDS_ON_ID",
		Short: "Record that ITEM_ID depends on DEPENDS_ON_ID; rejected when it would close a cycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, "dep add", func(ctx context.Context, s *session) error {
				dep, err := s.adapter.AddDependency(ctx, servercommon.AddDependencyRequest{
					ItemID:      args[0],
					DependsOnID: args[1],
					Type:        depType,
					LagMinutes:  lag,
					Actor:       c.actor,
				})
				if err != nil {
					return err
				}
				if c.jsonOut {
					return writeJSON(c.stdout, dep)
				}
				_, err = fmt.Fprintf(c.stdout, "added dependency %s: %s -> %s (%s, lag %dm)\n", dep.ID, dep.DependsOnID, dep.ItemID, dep.Type, dep.LagMinutes)
				return err
			})
		},
	}
	add.Flags().StringVar(&depType, "type", "", "dependency type (FS|SS|FF|SF); defaults to config")
	add.Flags().IntVar(&lag, "lag", 0, "lag in minutes; negative means lead")

	remove := &cobra.Command{
		Use:   "rm DEPENDENCY_ID",
		Short: "Delete a dependency edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, "dep rm", func(ctx context.Context, s *session) error {
				if err := s.adapter.RemoveDependency(ctx, servercommon.RemoveDependencyRequest{ID: args[0], Actor: c.actor}); err != nil {
					return err
				}
				return c.printRemoved("dependency", args[0])
			})
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

// newBlockCommand groups scheduled time-block commands.
func newBlockCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Manage scheduled time blocks",
	}

	var (
		start   string
		minutes int
	)
	add := &cobra.Command{
		Use:   "add ITEM_ID",
		Short: "Schedule a time block on an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startAt, err := requireTimeFlag("start", start)
			if err != nil {
				return err
			}
			return c.withSession(cmd, "block add", func(ctx context.Context, s *session) error {
				block, err := s.svc.ScheduleBlock(ctx, app.ScheduleBlockInput{
					ItemID:          args[0],
					StartAt:         startAt,
					DurationMinutes: minutes,
				})
				if err != nil {
					return err
				}
				return c.printCreated("block", block.ID, map[string]any{
					"id":               block.ID,
					"item_id":          block.ItemID,
					"start_at":         block.StartAt,
					"end_at":           block.EndAt(),
					"duration_minutes": block.DurationMinutes,
				})
			})
		},
	}
	add.Flags().StringVar(&start, "start", "", "block start (RFC3339)")
	add.Flags().IntVar(&minutes, "minutes", 0, "block duration in minutes")

	var (
		moveStart   string
		moveMinutes int
	)
	move := &cobra.Command{
		Use:   "update BLOCK_ID",
		Short: "Move or resize a time block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startAt, err := requireTimeFlag("start", moveStart)
			if err != nil {
				return err
			}
			return c.withSession(cmd, "block update", func(ctx context.Context, s *session) error {
				block, err := s.svc.UpdateBlock(ctx, args[0], startAt, moveMinutes)
				if err != nil {
					return err
				}
				return c.printUpdated("block", block.ID, block.EndAt().Format(time.RFC3339))
			})
		},
	}
	move.Flags().StringVar(&moveStart, "start", "", "block start (RFC3339)")
	move.Flags().IntVar(&moveMinutes, "minutes", 0, "block duration in minutes")

	remove := &cobra.Command{
		Use:   "rm BLOCK_ID",
		Short: "Unschedule a time block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, "block rm", func(ctx context.Context, s *session) error {
				if err := s.svc.DeleteBlock(ctx, args[0]); err != nil {
					return err
				}
				return c.printRemoved("block", args[0])
			})
		},
	}

	cmd.AddCommand(add, move, remove)
	return cmd
}

// newTimeCommand records actual effort.
func newTimeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "time",
		Short: "Record actual effort",
	}

	var (
		minutes int
		started string
		user    string
		note    string
	)
	logCmd := &cobra.Command{
		Use:   "log ITEM_ID",
		Short: "Log minutes spent on an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startedAt, err := parseTimeFlag("started", started)
			if err != nil {
				return err
			}
			return c.withSession(cmd, "time log", func(ctx context.Context, s *session) error {
				in := app.LogTimeInput{
					ItemID:  args[0],
					UserID:  user,
					Minutes: minutes,
					Note:    note,
				}
				if startedAt != nil {
					in.StartedAt = *startedAt
				}
				entry, err := s.svc.LogTime(ctx, in)
				if err != nil {
					return err
				}
				return c.printCreated("time entry", entry.ID, map[string]any{"id": entry.ID, "item_id": entry.ItemID, "minutes": entry.Minutes})
			})
		},
	}
	logCmd.Flags().IntVar(&minutes, "minutes", 0, "minutes spent")
	logCmd.Flags().StringVar(&started, "started", "", "start time (RFC3339); defaults to now")
	logCmd.Flags().StringVar(&user, "user", "", "user id; defaults to the actor")
	logCmd.Flags().StringVar(&note, "note", "", "free-form note")

	cmd.AddCommand(logCmd)
	return cmd
}

// newBlockerCommand groups explicit blocker commands.
func newBlockerCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocker",
		Short: "Raise and resolve explicit blockers",
	}
	raise := &cobra.Command{
		Use:   "raise ITEM_ID REASON",
		Short: "Raise a blocker on an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, "blocker raise", func(ctx context.Context, s *session) error {
				blocker, err := s.svc.RaiseBlocker(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return c.printCreated("blocker", blocker.ID, map[string]any{"id": blocker.ID, "item_id": blocker.ItemID, "reason": blocker.Reason})
			})
		},
	}
	resolve := &cobra.Command{
		Use:   "resolve BLOCKER_ID",
		Short: "Resolve an open blocker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, "blocker resolve", func(ctx context.Context, s *session) error {
				blocker, err := s.svc.ResolveBlocker(ctx, args[0])
				if err != nil {
					return err
				}
				return c.printUpdated("blocker", blocker.ID, "resolved")
			})
		},
	}
	cmd.AddCommand(raise, resolve)
	return cmd
}

// scopeFlags holds the shared view scope selectors.
type scopeFlags struct {
	projectID       string
	assigneeID      string
	includeArchived bool
}

// bind registers the shared scope flags.
func (f *scopeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.projectID, "project", "", "project scope; exclusive with --assignee")
	cmd.Flags().StringVar(&f.assigneeID, "assignee", "", "user scope; exclusive with --project")
	cmd.Flags().BoolVar(&f.includeArchived, "archived", false, "include archived items")
}

// request converts the flags into a transport scope.
func (f scopeFlags) request() servercommon.ScopeRequest {
	return servercommon.ScopeRequest{
		ProjectID:       f.projectID,
		AssigneeID:      f.assigneeID,
		IncludeArchived: f.includeArchived,
	}
}

// newViewCommand groups the analyzed read views.
func newViewCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Show analyzed views",
	}

	var listScope scopeFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List scoped items with schedule, dependency, and rollup signals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, "view list", func(ctx context.Context, s *session) error {
				items, err := s.adapter.ListView(ctx, listScope.request())
				if err != nil {
					return err
				}
				if c.jsonOut {
					return writeJSON(c.stdout, map[string]any{"items": items})
				}
				return renderItemTable(c.stdout, items)
			})
		},
	}
	listScope.bind(list)

	var blockedScope scopeFlags
	blocked := &cobra.Command{
		Use:   "blocked",
		Short: "List items that are blocked, waiting on a predecessor, or scheduled against a violated edge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, "view blocked", func(ctx context.Context, s *session) error {
				items, err := s.adapter.BlockedView(ctx, blockedScope.request())
				if err != nil {
					return err
				}
				if c.jsonOut {
					return writeJSON(c.stdout, map[string]any{"items": items})
				}
				return renderItemTable(c.stdout, items)
			})
		},
	}
	blockedScope.bind(blocked)

	var (
		windowScope scopeFlags
		from        string
		to          string
	)
	window := &cobra.Command{
		Use:   "window",
		Short: "List items whose schedule overlaps [from, to)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fromAt, err := parseTimeFlag("from", from)
			if err != nil {
				return err
			}
			toAt, err := parseTimeFlag("to", to)
			if err != nil {
				return err
			}
			return c.withSession(cmd, "view window", func(ctx context.Context, s *session) error {
				result, err := s.adapter.ExecutionWindow(ctx, servercommon.ExecutionWindowRequest{
					ScopeRequest: windowScope.request(),
					From:         fromAt,
					To:           toAt,
				})
				if err != nil {
					return err
				}
				if c.jsonOut {
					return writeJSON(c.stdout, result)
				}
				_, _ = fmt.Fprintf(c.stdout, "window %s .. %s\n", result.From.Format(time.RFC3339), result.To.Format(time.RFC3339))
				return renderItemTable(c.stdout, result.Items)
			})
		},
	}
	windowScope.bind(window)
	window.Flags().StringVar(&from, "from", "", "window start (RFC3339); defaults to now")
	window.Flags().StringVar(&to, "to", "", "window end (RFC3339); defaults to the configured window length")

	item := &cobra.Command{
		Use:   "item ITEM_ID",
		Short: "Show one item with its links, blocks, time entries, and blockers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, "view item", func(ctx context.Context, s *session) error {
				details, err := s.adapter.ItemDetails(ctx, args[0])
				if err != nil {
					return err
				}
				if c.jsonOut {
					return writeJSON(c.stdout, details)
				}
				return renderItemDetails(c.stdout, details)
			})
		},
	}

	cmd.AddCommand(list, blocked, window, item)
	return cmd
}

// newReportCommand groups diagnostic reports.
func newReportCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run diagnostic reports",
	}
	var scope scopeFlags
	integrity := &cobra.Command{
		Use:   "integrity",
		Short: "Report invalid blocks, orphaned records, cross-project edges, cycles, and non-member assignees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, "report integrity", func(ctx context.Context, s *session) error {
				report, err := s.adapter.IntegrityReport(ctx, scope.request())
				if err != nil {
					return err
				}
				if c.jsonOut {
					return writeJSON(c.stdout, report)
				}
				_, err = fmt.Fprintln(c.stdout, renderMarkdown(integrityMarkdown(report), 100))
				return err
			})
		},
	}
	scope.bind(integrity)
	cmd.AddCommand(integrity)
	return cmd
}

// newEventsCommand lists a project's change ledger.
func newEventsCommand(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events PROJECT_ID",
		Short: "List a project's recent changes, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, "events", func(ctx context.Context, s *session) error {
				events, err := s.svc.ListProjectChangeEvents(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if c.jsonOut {
					rows := make([]map[string]any, 0, len(events))
					for _, ev := range events {
						rows = append(rows, map[string]any{
							"item_id":     ev.WorkItemID,
							"operation":   ev.Operation,
							"actor_id":    ev.ActorID,
							"metadata":    ev.Metadata,
							"occurred_at": ev.OccurredAt,
						})
					}
					return writeJSON(c.stdout, map[string]any{"events": rows})
				}
				for _, ev := range events {
					_, _ = fmt.Fprintf(c.stdout, "%s  %-10s %-12s %s\n", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Operation, ev.ActorID, ev.WorkItemID)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to list")
	return cmd
}

// printCreated reports one created record.
func (c *cli) printCreated(kind, id string, payload map[string]any) error {
	if c.jsonOut {
		return writeJSON(c.stdout, payload)
	}
	_, err := fmt.Fprintf(c.stdout, "created %s %s\n", kind, id)
	return err
}

// printUpdated reports one updated record.
func (c *cli) printUpdated(kind, id, state string) error {
	if c.jsonOut {
		return writeJSON(c.stdout, map[string]any{"id": id, "state": state})
	}
	_, err := fmt.Fprintf(c.stdout, "updated %s %s (%s)\n", kind, id, state)
	return err
}

// printRemoved reports one removed record.
func (c *cli) printRemoved(kind, id string) error {
	if c.jsonOut {
		return writeJSON(c.stdout, map[string]any{"id": id, "removed": true})
	}
	_, err := fmt.Fprintf(c.stdout, "removed %s %s\n", kind, id)
	return err
}

// parseTimeFlag parses one optional RFC3339 flag value.
func parseTimeFlag(name, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("--%s must be RFC3339: %w", name, err)
	}
	return &ts, nil
}

// requireTimeFlag parses one required RFC3339 flag value.
func requireTimeFlag(name, raw string) (time.Time, error) {
	ts, err := parseTimeFlag(name, raw)
	if err != nil {
		return time.Time{}, err
	}
	if ts == nil {
		return time.Time{}, fmt.Errorf("--%s is required", name)
	}
	return *ts, nil
}
