package common

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hylla/tempo/internal/app"
	"github.com/hylla/tempo/internal/domain"
	"github.com/hylla/tempo/internal/engine"
)

// validate checks request struct tags; field names are reported by their json tag.
var validate = newValidator()

// newValidator builds the shared request validator.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// ValidateRequest checks one request struct and wraps failures in ErrInvalidRequest.
func ValidateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		messages = append(messages, formatFieldError(fieldErr))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(messages, "; "))
}

// formatFieldError renders one failed rule as a caller-facing sentence.
func formatFieldError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "required_without":
		return fmt.Sprintf("one of %s or %s is required", err.Field(), jsonFieldName(err.Param()))
	case "excluded_with":
		return fmt.Sprintf("%s cannot be combined with %s", err.Field(), jsonFieldName(err.Param()))
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	default:
		return fmt.Sprintf("%s failed %s", err.Field(), err.Tag())
	}
}

// jsonFieldName maps a Go field name used in cross-field tags to its wire name.
func jsonFieldName(field string) string {
	switch field {
	case "ProjectID":
		return "project_id"
	case "AssigneeID":
		return "assignee_id"
	default:
		return field
	}
}

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// AddDependency validates and records one guarded edge.
func (a *AppServiceAdapter) AddDependency(ctx context.Context, in AddDependencyRequest) (Dependency, error) {
	if err := a.ready(); err != nil {
		return Dependency{}, err
	}
	if err := ValidateRequest(in); err != nil {
		return Dependency{}, err
	}
	ctx = withActor(ctx, in.Actor)
	dep, err := a.service.AddDependency(ctx, app.AddDependencyInput{
		ItemID:      in.ItemID,
		DependsOnID: in.DependsOnID,
		Type:        in.Type,
		LagMinutes:  in.LagMinutes,
	})
	if err != nil {
		return Dependency{}, mapAppError(err)
	}
	return mapDependency(dep), nil
}

// RemoveDependency deletes one edge.
func (a *AppServiceAdapter) RemoveDependency(ctx context.Context, in RemoveDependencyRequest) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := ValidateRequest(in); err != nil {
		return err
	}
	if err := a.service.RemoveDependency(withActor(ctx, in.Actor), in.ID); err != nil {
		return mapAppError(err)
	}
	return nil
}

// ListView returns every scoped item with derived signals.
func (a *AppServiceAdapter) ListView(ctx context.Context, in ScopeRequest) ([]engine.ItemView, error) {
	scope, err := a.scope(in)
	if err != nil {
		return nil, err
	}
	items, err := a.service.ListView(ctx, scope)
	if err != nil {
		return nil, mapAppError(err)
	}
	return items, nil
}

// ExecutionWindow returns scoped items scheduled within the requested window.
func (a *AppServiceAdapter) ExecutionWindow(ctx context.Context, in ExecutionWindowRequest) (ExecutionWindow, error) {
	scope, err := a.scope(in.ScopeRequest)
	if err != nil {
		return ExecutionWindow{}, err
	}
	var from, to time.Time
	if in.From != nil {
		from = *in.From
	}
	if in.To != nil {
		to = *in.To
	}
	result, err := a.service.ExecutionWindow(ctx, scope, from, to)
	if err != nil {
		return ExecutionWindow{}, mapAppError(err)
	}
	return ExecutionWindow{From: result.From, To: result.To, Items: result.Items}, nil
}

// BlockedView returns scoped items that need attention.
func (a *AppServiceAdapter) BlockedView(ctx context.Context, in ScopeRequest) ([]engine.ItemView, error) {
	scope, err := a.scope(in)
	if err != nil {
		return nil, err
	}
	items, err := a.service.BlockedView(ctx, scope)
	if err != nil {
		return nil, mapAppError(err)
	}
	return items, nil
}

// ItemDetails returns one analyzed item with its raw records.
func (a *AppServiceAdapter) ItemDetails(ctx context.Context, itemID string) (ItemDetails, error) {
	if err := a.ready(); err != nil {
		return ItemDetails{}, err
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return ItemDetails{}, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	details, err := a.service.ItemDetails(ctx, itemID)
	if err != nil {
		return ItemDetails{}, mapAppError(err)
	}
	return mapItemDetails(details), nil
}

// IntegrityReport inspects the scoped projects for structural defects.
func (a *AppServiceAdapter) IntegrityReport(ctx context.Context, in ScopeRequest) (engine.Report, error) {
	scope, err := a.scope(in)
	if err != nil {
		return engine.Report{}, err
	}
	report, err := a.service.IntegrityReport(ctx, scope)
	if err != nil {
		return engine.Report{}, mapAppError(err)
	}
	return report, nil
}

// ApplyBatch runs each op independently and reports per-op results.
func (a *AppServiceAdapter) ApplyBatch(ctx context.Context, in BatchRequest) ([]BatchResult, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if err := ValidateRequest(in); err != nil {
		return nil, err
	}
	ops := make([]app.BatchOp, 0, len(in.Ops))
	for _, op := range in.Ops {
		next := app.BatchOp{
			Op:              app.BatchOpKind(op.Op),
			ItemID:          op.ItemID,
			DependsOnID:     op.DependsOnID,
			DependencyID:    op.DependencyID,
			Type:            op.Type,
			LagMinutes:      op.LagMinutes,
			DurationMinutes: op.DurationMinutes,
			Status:          domain.ItemStatus(op.Status),
		}
		if op.StartAt != nil {
			next.StartAt = *op.StartAt
		}
		ops = append(ops, next)
	}
	results := a.service.ApplyBatch(withActor(ctx, in.Actor), ops)
	out := make([]BatchResult, 0, len(results))
	for _, result := range results {
		row := BatchResult{
			Index: result.Index,
			Op:    string(result.Op),
			ID:    result.ID,
			OK:    result.OK(),
		}
		if !result.OK() {
			mapped := mapAppError(result.Err)
			row.ID = ""
			row.Error = &BatchError{Code: ErrorCode(mapped), Message: mapped.Error()}
		}
		out = append(out, row)
	}
	return out, nil
}

// ready reports whether the adapter has a backing service.
func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return errors.New("app service adapter is not configured")
	}
	return nil
}

// scope validates one scope request and converts it to the app shape.
func (a *AppServiceAdapter) scope(in ScopeRequest) (app.Scope, error) {
	if err := a.ready(); err != nil {
		return app.Scope{}, err
	}
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.AssigneeID = strings.TrimSpace(in.AssigneeID)
	if err := ValidateRequest(in); err != nil {
		return app.Scope{}, err
	}
	return app.Scope{
		ProjectID:       in.ProjectID,
		AssigneeID:      in.AssigneeID,
		IncludeArchived: in.IncludeArchived,
	}, nil
}

// BrokerEventSource adapts app.Broker to the transport event stream.
type BrokerEventSource struct {
	broker *app.Broker
}

// NewBrokerEventSource wraps one broker.
func NewBrokerEventSource(broker *app.Broker) *BrokerEventSource {
	return &BrokerEventSource{broker: broker}
}

// Subscribe relays broker events as wire events until ctx is done.
func (s *BrokerEventSource) Subscribe(ctx context.Context, projectID string) <-chan ChangeEvent {
	out := make(chan ChangeEvent)
	if s == nil || s.broker == nil {
		close(out)
		return out
	}
	in := s.broker.Subscribe(ctx, strings.TrimSpace(projectID))
	go func() {
		defer close(out)
		for event := range in {
			select {
			case out <- mapChangeEvent(event):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// withActor attaches a non-empty actor id to ctx for change-ledger attribution.
func withActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return app.WithMutationActor(ctx, app.MutationActor{ActorID: actor})
}

// classifiedError tags an app error with a transport category while keeping its message.
type classifiedError struct {
	kind error
	err  error
}

// Error returns the underlying message unchanged.
func (e classifiedError) Error() string {
	return e.err.Error()
}

// Unwrap exposes both the category and the cause to errors.Is.
func (e classifiedError) Unwrap() []error {
	return []error{e.kind, e.err}
}

// mapAppError maps app and domain errors into transport categories.
func mapAppError(err error) error {
	if err == nil {
		return nil
	}
	classify := func(kind error) error {
		return classifiedError{kind: kind, err: err}
	}
	switch {
	case errors.Is(err, domain.ErrDependencyCycle):
		return classify(ErrDependencyCycle)
	case errors.Is(err, domain.ErrDuplicateDependency):
		return classify(ErrDuplicateDependency)
	case errors.Is(err, app.ErrNotFound):
		return classify(ErrNotFound)
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidParentID),
		errors.Is(err, domain.ErrParentCycle),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidMinutes),
		errors.Is(err, domain.ErrInvalidStartTime),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrInvalidDependencyType),
		errors.Is(err, domain.ErrSelfDependency),
		errors.Is(err, domain.ErrCrossProjectDependency),
		errors.Is(err, app.ErrInvalidScope),
		errors.Is(err, app.ErrInvalidBatchOp):
		return classify(ErrInvalidRequest)
	default:
		return err
	}
}

// mapDependency converts one domain edge to its wire form.
func mapDependency(dep domain.Dependency) Dependency {
	return Dependency{
		ID:          dep.ID,
		ProjectID:   dep.ProjectID,
		ItemID:      dep.ItemID,
		DependsOnID: dep.DependsOnID,
		Type:        dep.Type,
		LagMinutes:  dep.LagMinutes,
		CreatedAt:   dep.CreatedAt,
	}
}

// mapItemDetails converts app item details to their wire form.
func mapItemDetails(in app.ItemDetails) ItemDetails {
	out := ItemDetails{
		Item:        in.Item,
		Children:    in.Children,
		Blocks:      make([]ScheduledBlock, 0, len(in.Blocks)),
		TimeEntries: make([]TimeEntry, 0, len(in.TimeEntries)),
		Blockers:    make([]Blocker, 0, len(in.Blockers)),
	}
	if out.Children == nil {
		out.Children = []engine.ItemView{}
	}
	for _, block := range in.Blocks {
		out.Blocks = append(out.Blocks, ScheduledBlock{
			ID:              block.ID,
			ItemID:          block.ItemID,
			StartAt:         block.StartAt,
			EndAt:           block.EndAt(),
			DurationMinutes: block.DurationMinutes,
		})
	}
	for _, entry := range in.TimeEntries {
		out.TimeEntries = append(out.TimeEntries, TimeEntry{
			ID:        entry.ID,
			ItemID:    entry.ItemID,
			UserID:    entry.UserID,
			StartedAt: entry.StartedAt,
			Minutes:   entry.Minutes,
			Note:      entry.Note,
		})
	}
	for _, blocker := range in.Blockers {
		out.Blockers = append(out.Blockers, Blocker{
			ID:         blocker.ID,
			ItemID:     blocker.ItemID,
			Reason:     blocker.Reason,
			CreatedAt:  blocker.CreatedAt,
			ResolvedAt: blocker.ResolvedAt,
		})
	}
	return out
}

// mapChangeEvent converts one ledger event to its wire form.
func mapChangeEvent(event domain.ChangeEvent) ChangeEvent {
	return ChangeEvent{
		ProjectID:  event.ProjectID,
		ItemID:     event.WorkItemID,
		Operation:  string(event.Operation),
		ActorID:    event.ActorID,
		Metadata:   event.Metadata,
		OccurredAt: event.OccurredAt,
	}
}
