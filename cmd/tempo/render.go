package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	servercommon "github.com/hylla/tempo/internal/adapters/server/common"
	"github.com/hylla/tempo/internal/domain"
	"github.com/hylla/tempo/internal/engine"
)

// statusColors maps item statuses to badge colors.
var statusColors = map[domain.ItemStatus]lipgloss.AdaptiveColor{
	domain.StatusBacklog:    {Light: "244", Dark: "245"},
	domain.StatusReady:      {Light: "25", Dark: "75"},
	domain.StatusInProgress: {Light: "130", Dark: "214"},
	domain.StatusBlocked:    {Light: "160", Dark: "203"},
	domain.StatusReview:     {Light: "91", Dark: "177"},
	domain.StatusDone:       {Light: "28", Dark: "114"},
	domain.StatusCanceled:   {Light: "240", Dark: "240"},
}

var (
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "203"}).Bold(true)
)

// statusBadge renders one status with its color. Unknown statuses render plain.
func statusBadge(status domain.ItemStatus) string {
	color, ok := statusColors[status]
	if !ok {
		return string(status)
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render(string(status))
}

// newTable returns a table with the shared border and cell styling.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// renderProjectTable prints projects as a table.
func renderProjectTable(w io.Writer, projects []domain.Project) error {
	if len(projects) == 0 {
		_, err := fmt.Fprintln(w, "no projects")
		return err
	}
	t := newTable("ID", "Slug", "Name", "Archived")
	for _, p := range projects {
		t.Row(p.ID, p.Slug, p.Name, strconv.FormatBool(p.ArchivedAt != nil))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// renderItemTable prints analyzed items with their schedule and signal columns.
func renderItemTable(w io.Writer, items []engine.ItemView) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "no items")
		return err
	}
	t := newTable("ID", "Title", "Status", "Schedule", "Slack", "Rollup", "Signals")
	for _, item := range items {
		t.Row(
			item.ID,
			item.Title,
			statusBadge(item.Status),
			formatSchedule(item.ScheduleStartAt, item.ScheduleEndAt),
			formatSlack(item.SlackMinutes),
			fmt.Sprintf("%dm est / %dm left", item.RollupEstimateMinutes, item.RollupRemainingMinutes),
			formatSignals(item),
		)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// renderItemDetails prints one item with its links and records.
func renderItemDetails(w io.Writer, d servercommon.ItemDetails) error {
	item := d.Item
	_, _ = fmt.Fprintf(w, "%s  %s  [%s]\n", item.ID, item.Title, statusBadge(item.Status))
	_, _ = fmt.Fprintf(w, "schedule: %s  slack: %s  actual: %dm\n", formatSchedule(item.ScheduleStartAt, item.ScheduleEndAt), formatSlack(item.SlackMinutes), item.ActualMinutes)
	if signals := formatSignals(item); signals != "" {
		_, _ = fmt.Fprintf(w, "signals: %s\n", warnStyle.Render(signals))
	}

	if len(item.BlockedBy) > 0 || len(item.Blocking) > 0 {
		t := newTable("Direction", "Item", "Type", "Lag", "Status", "Reason")
		for _, link := range item.BlockedBy {
			t.Row("after", link.ItemID, string(link.Type), strconv.Itoa(link.LagMinutes)+"m", string(link.Status), link.Reason)
		}
		for _, link := range item.Blocking {
			t.Row("before", link.ItemID, string(link.Type), strconv.Itoa(link.LagMinutes)+"m", string(link.Status), link.Reason)
		}
		_, _ = fmt.Fprintln(w, t.Render())
	}
	if len(d.Blocks) > 0 {
		t := newTable("Block", "Start", "End", "Minutes")
		for _, b := range d.Blocks {
			t.Row(b.ID, b.StartAt.UTC().Format(time.RFC3339), b.EndAt.UTC().Format(time.RFC3339), strconv.Itoa(b.DurationMinutes))
		}
		_, _ = fmt.Fprintln(w, t.Render())
	}
	if len(d.TimeEntries) > 0 {
		t := newTable("Entry", "User", "Started", "Minutes", "Note")
		for _, e := range d.TimeEntries {
			t.Row(e.ID, e.UserID, e.StartedAt.UTC().Format(time.RFC3339), strconv.Itoa(e.Minutes), e.Note)
		}
		_, _ = fmt.Fprintln(w, t.Render())
	}
	for _, b := range d.Blockers {
		state := "open"
		if b.ResolvedAt != nil {
			state = "resolved"
		}
		_, _ = fmt.Fprintf(w, "blocker %s (%s): %s\n", b.ID, state, b.Reason)
	}
	if len(d.Children) > 0 {
		_, _ = fmt.Fprintln(w, "children:")
		return renderItemTable(w, d.Children)
	}
	return nil
}

// formatSchedule renders a schedule envelope or a dash when unscheduled.
func formatSchedule(start, end *time.Time) string {
	if start == nil || end == nil {
		return "-"
	}
	return start.UTC().Format("2006-01-02 15:04") + " .. " + end.UTC().Format("2006-01-02 15:04")
}

// formatSlack renders slack minutes; nil means no due date or no schedule.
func formatSlack(slack *int) string {
	if slack == nil {
		return "-"
	}
	return strconv.Itoa(*slack) + "m"
}

// formatSignals joins the active derived signals.
func formatSignals(item engine.ItemView) string {
	var signals []string
	if item.UnmetDependency {
		signals = append(signals, "unmet_dependency")
	}
	if item.ScheduleViolation {
		signals = append(signals, "schedule_violation")
	}
	if item.Overdue {
		signals = append(signals, "overdue")
	}
	if item.OpenBlockers > 0 {
		signals = append(signals, fmt.Sprintf("blockers:%d", item.OpenBlockers))
	}
	return strings.Join(signals, ",")
}

// integrityMarkdown formats an integrity report as markdown.
func integrityMarkdown(r engine.Report) string {
	var b strings.Builder
	b.WriteString("# Integrity report\n\n")
	if r.Clean() {
		b.WriteString("No structural defects found.\n")
		return b.String()
	}
	b.WriteString("| Check | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Invalid blocks | %d |\n", r.Counts.InvalidBlocks)
	fmt.Fprintf(&b, "| Orphaned blocks | %d |\n", r.Counts.OrphanedBlocks)
	fmt.Fprintf(&b, "| Orphaned edges | %d |\n", r.Counts.OrphanedEdges)
	fmt.Fprintf(&b, "| Cross-project edges | %d |\n", r.Counts.CrossProjectEdges)
	fmt.Fprintf(&b, "| Cycles | %d |\n", r.Counts.Cycles)
	fmt.Fprintf(&b, "| Non-member assignees | %d |\n\n", r.Counts.NonMemberAssignees)

	if len(r.InvalidBlocks) > 0 {
		b.WriteString("## Invalid blocks\n\n")
		for _, issue := range r.InvalidBlocks {
			fmt.Fprintf(&b, "- `%s` on `%s`: %d minutes\n", issue.BlockID, issue.ItemID, issue.DurationMinutes)
		}
		b.WriteString("\n")
	}
	if len(r.OrphanedBlocks) > 0 {
		b.WriteString("## Orphaned blocks\n\n")
		for _, issue := range r.OrphanedBlocks {
			fmt.Fprintf(&b, "- `%s` references missing item `%s`\n", issue.BlockID, issue.ItemID)
		}
		b.WriteString("\n")
	}
	writeEdgeIssues(&b, "Orphaned edges", r.OrphanedEdges)
	writeEdgeIssues(&b, "Cross-project edges", r.CrossProjectEdges)
	if len(r.Cycles) > 0 {
		b.WriteString("## Cycles\n\n")
		for _, cycle := range r.Cycles {
			fmt.Fprintf(&b, "- %s\n", strings.Join(cycle, " → "))
		}
		b.WriteString("\n")
	}
	if len(r.NonMemberAssignees) > 0 {
		b.WriteString("## Non-member assignees\n\n")
		for _, issue := range r.NonMemberAssignees {
			fmt.Fprintf(&b, "- `%s` assigned to `%s` outside project `%s`\n", issue.ItemID, issue.AssigneeID, issue.ProjectID)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// writeEdgeIssues appends one edge-issue section when it has entries.
func writeEdgeIssues(b *strings.Builder, title string, issues []engine.EdgeIssue) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, issue := range issues {
		fmt.Fprintf(b, "- `%s`: `%s` depends on `%s`", issue.DependencyID, issue.ItemID, issue.DependsOnID)
		if len(issue.MissingIDs) > 0 {
			fmt.Fprintf(b, " (missing %s)", strings.Join(issue.MissingIDs, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// renderMarkdown converts markdown into terminal text, falling back to the raw source.
func renderMarkdown(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	if width < 24 {
		width = 24
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

// writeJSON prints one indented JSON document.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	return nil
}

// ensureParentDir creates the directory that will hold path.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
