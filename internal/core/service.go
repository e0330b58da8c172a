// Package core hosts the workspace service: observed, transactional
// operations over the project model, the built-in workspace rules and the
// selection of a persistent store.
package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"workspacemodel/pkg/domain"
	"workspacemodel/pkg/workspace"
)

// Operation names reported to loggers, metrics, tracers and audit sinks.
const (
	OpCreateModule       = "create_module"
	OpRenameModule       = "rename_module"
	OpRemoveModule       = "remove_module"
	OpAddContentRoot     = "add_content_root"
	OpAddSourceRoot      = "add_source_root"
	OpSetDependencies    = "set_dependencies"
	OpSetModuleSdk       = "set_module_sdk"
	OpCreateLibrary      = "create_library"
	OpAttachFacet        = "attach_facet"
	OpSaveComponentState = "save_component_state"
)

type operationInfo struct {
	entity string
	action AuditAction
}

var operations = map[string]operationInfo{
	OpCreateModule:       {workspace.ModuleType, AuditActionCreate},
	OpRenameModule:       {workspace.ModuleType, AuditActionUpdate},
	OpRemoveModule:       {workspace.ModuleType, AuditActionDelete},
	OpAddContentRoot:     {workspace.ContentRootType, AuditActionCreate},
	OpAddSourceRoot:      {workspace.SourceRootType, AuditActionCreate},
	OpSetDependencies:    {workspace.ModuleType, AuditActionUpdate},
	OpSetModuleSdk:       {workspace.ModuleType, AuditActionUpdate},
	OpCreateLibrary:      {workspace.LibraryType, AuditActionCreate},
	OpAttachFacet:        {workspace.FacetType, AuditActionCreate},
	OpSaveComponentState: {workspace.ComponentType, AuditActionUpdate},
}

// ErrComponentNotFound is returned when a named component is absent.
var ErrComponentNotFound = errors.New("component not found")

// Service exposes observed transactional operations over the workspace
// model.
type Service struct {
	store  domain.PersistentStore
	types  workspace.Types
	source domain.EntitySource
	opts   serviceOptions
}

// NewService registers the workspace schemas with the store's registry and
// returns a service over it. Entities created by the service carry source.
func NewService(store domain.PersistentStore, source domain.EntitySource, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("service: nil store")
	}
	if source.IsZero() {
		return nil, fmt.Errorf("service: entity source kind is required")
	}
	types, err := workspace.Register(store.Registry())
	if err != nil {
		return nil, err
	}
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{store: store, types: types, source: source, opts: o}, nil
}

// Store returns the underlying store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Types returns the registered workspace types.
func (s *Service) Types() workspace.Types { return s.types }

// run executes fn in one transaction and reports the outcome to every
// configured sink. fn returns the id of the entity it acted on.
func (s *Service) run(ctx context.Context, op string, fn func(tx domain.Transaction) (domain.EntityID, error)) (domain.EntityID, domain.Outcome, error) {
	ctx, span := s.opts.tracer.Start(ctx, op)
	started := time.Now()
	var id domain.EntityID
	out, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		id, err = fn(tx)
		return err
	})
	elapsed := time.Since(started)
	s.opts.metrics.Observe(ctx, op, err == nil, elapsed)
	span.End(err)
	s.recordAudit(ctx, op, id, elapsed, err)

	if err != nil {
		var ive *domain.IntegrityViolationError
		if errors.As(err, &ive) {
			s.opts.logger.Warn("operation rejected", "operation", op, "violations", len(ive.Result.Blocking()))
		} else {
			s.opts.logger.Error("operation failed", "operation", op, "error", err)
		}
		return id, out, err
	}
	s.opts.logger.Debug("operation committed", "operation", op, "entity", id.String(), "version", out.Version, "changes", out.Diff.Len())
	return id, out, nil
}

func (s *Service) recordAudit(ctx context.Context, op string, id domain.EntityID, elapsed time.Duration, err error) {
	info, ok := operations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    info.entity,
		Action:    info.action,
		Status:    AuditStatusSuccess,
		Duration:  elapsed,
		Timestamp: s.opts.clock.Now(),
	}
	if !id.IsZero() {
		entry.EntityID = id.String()
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.opts.audit.Record(ctx, entry)
}

func (s *Service) entity(ctx context.Context, id domain.EntityID) (domain.Entity, error) {
	var e domain.Entity
	err := s.store.View(ctx, func(v domain.SnapshotView) error {
		var ok bool
		if e, ok = v.Get(id); !ok {
			return &domain.NotFoundError{ID: id}
		}
		return nil
	})
	return e, err
}

// CreateModule adds a module.
func (s *Service) CreateModule(ctx context.Context, name, moduleType string, deps ...workspace.DependencyItem) (domain.Entity, domain.Outcome, error) {
	id, out, err := s.run(ctx, OpCreateModule, func(tx domain.Transaction) (domain.EntityID, error) {
		e, err := workspace.NewModule(tx, s.types, s.source, name, moduleType, deps...)
		return e.ID(), err
	})
	if err != nil {
		return domain.Entity{}, out, err
	}
	e, err := s.entity(ctx, id)
	return e, out, err
}

// RenameModule changes a module's name.
func (s *Service) RenameModule(ctx context.Context, id domain.EntityID, name string) (domain.Outcome, error) {
	_, out, err := s.run(ctx, OpRenameModule, func(tx domain.Transaction) (domain.EntityID, error) {
		_, err := tx.ModifyEntity(id, func(m *domain.MutableEntity) error {
			m.Set(workspace.FieldName, domain.String(name))
			return nil
		})
		return id, err
	})
	return out, err
}

// RemoveModule removes a module with its content and source roots.
func (s *Service) RemoveModule(ctx context.Context, id domain.EntityID) (domain.Outcome, error) {
	_, out, err := s.run(ctx, OpRemoveModule, func(tx domain.Transaction) (domain.EntityID, error) {
		_, err := tx.RemoveEntity(id)
		return id, err
	})
	return out, err
}

// AddContentRoot adds a content root to a module.
func (s *Service) AddContentRoot(ctx context.Context, module domain.EntityID, url string, excluded ...string) (domain.EntityID, domain.Outcome, error) {
	return s.run(ctx, OpAddContentRoot, func(tx domain.Transaction) (domain.EntityID, error) {
		e, err := workspace.AddContentRoot(tx, s.types, s.source, module, url, excluded...)
		return e.ID(), err
	})
}

// AddSourceRoot adds a source root to a content root.
func (s *Service) AddSourceRoot(ctx context.Context, contentRoot domain.EntityID, url, rootType string) (domain.EntityID, domain.Outcome, error) {
	return s.run(ctx, OpAddSourceRoot, func(tx domain.Transaction) (domain.EntityID, error) {
		e, err := workspace.AddSourceRoot(tx, s.types, s.source, contentRoot, url, rootType)
		return e.ID(), err
	})
}

// SetDependencies replaces a module's dependency list.
func (s *Service) SetDependencies(ctx context.Context, module domain.EntityID, deps []workspace.DependencyItem) (domain.Outcome, error) {
	_, out, err := s.run(ctx, OpSetDependencies, func(tx domain.Transaction) (domain.EntityID, error) {
		return module, workspace.SetDependencies(tx, module, deps)
	})
	return out, err
}

// SetModuleSdk points a module's sdk at library. A zero library clears it.
func (s *Service) SetModuleSdk(ctx context.Context, module, library domain.EntityID) (domain.Outcome, error) {
	_, out, err := s.run(ctx, OpSetModuleSdk, func(tx domain.Transaction) (domain.EntityID, error) {
		if library.IsZero() {
			_, err := tx.ModifyEntity(module, func(m *domain.MutableEntity) error {
				m.Unset(workspace.FieldSdk)
				return nil
			})
			return module, err
		}
		return module, tx.AddEdge(module, workspace.FieldSdk, library)
	})
	return out, err
}

// CreateLibrary adds a library to table.
func (s *Service) CreateLibrary(ctx context.Context, name string, table workspace.LibraryTableID, roots ...string) (domain.EntityID, domain.Outcome, error) {
	return s.run(ctx, OpCreateLibrary, func(tx domain.Transaction) (domain.EntityID, error) {
		e, err := workspace.NewLibrary(tx, s.types, s.source, name, table, roots...)
		return e.ID(), err
	})
}

// AttachFacet adds a facet bound to module.
func (s *Service) AttachFacet(ctx context.Context, module domain.EntityID, name, facetType, configuration string) (domain.EntityID, domain.Outcome, error) {
	return s.run(ctx, OpAttachFacet, func(tx domain.Transaction) (domain.EntityID, error) {
		e, err := workspace.NewFacet(tx, s.types, s.source, module, name, facetType, configuration)
		return e.ID(), err
	})
}

// Modules returns every module in instance order.
func (s *Service) Modules(ctx context.Context) ([]domain.Entity, error) {
	var out []domain.Entity
	err := s.store.View(ctx, func(v domain.SnapshotView) error {
		for e := range v.EntitiesOfType(s.types.Module) {
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// ComponentState is the content of one stored component: its root element
// and named sub-states in document order.
type ComponentState struct {
	Attributes []string
	Body       string
	SubStates  []SubState
}

// SubState is one named child of a component state.
type SubState struct {
	Name       string
	Attributes []string
	Body       string
}

// SaveComponentState replaces the stored state of component name. Sub-states
// are matched by name so unchanged ones keep their identity. A nil state
// removes the component. Attributes and bodies that would not render as XML
// fail with workspace.ErrInvalidMarkup.
func (s *Service) SaveComponentState(ctx context.Context, name string, state *ComponentState) (domain.Outcome, error) {
	_, out, err := s.run(ctx, OpSaveComponentState, func(tx domain.Transaction) (domain.EntityID, error) {
		if state != nil {
			if err := state.check(); err != nil {
				return domain.EntityID{}, err
			}
		}
		existing, found := workspace.FindByName(tx, s.types.Component, name)
		if state == nil {
			if !found {
				return domain.EntityID{}, nil
			}
			_, err := tx.RemoveEntity(existing.ID())
			return existing.ID(), err
		}
		return s.saveComponent(tx, name, existing, found, *state)
	})
	return out, err
}

func (c ComponentState) check() error {
	if err := workspace.CheckStateMarkup(c.Attributes, c.Body); err != nil {
		return err
	}
	for _, sub := range c.SubStates {
		if err := workspace.CheckStateMarkup(sub.Attributes, sub.Body); err != nil {
			return fmt.Errorf("sub-state %s: %w", sub.Name, err)
		}
	}
	return nil
}

func (s *Service) saveComponent(tx domain.Transaction, name string, existing domain.Entity, found bool, state ComponentState) (domain.EntityID, error) {
	var component domain.EntityID
	if found {
		component = existing.ID()
		if _, err := tx.ModifyEntity(component, func(m *domain.MutableEntity) error {
			setStateFields(m, state.Attributes, state.Body)
			return nil
		}); err != nil {
			return component, err
		}
	} else {
		e, err := workspace.NewComponent(tx, s.types, s.source, name, state.Attributes, state.Body)
		if err != nil {
			return domain.EntityID{}, err
		}
		component = e.ID()
	}

	current := make(map[string]domain.EntityID)
	for _, sub := range workspace.SubStates(tx, component) {
		current[sub.Text(workspace.FieldName)] = sub.ID()
	}
	wanted := make(map[string]bool, len(state.SubStates))
	for _, sub := range state.SubStates {
		wanted[sub.Name] = true
	}
	for subName, id := range current {
		if !wanted[subName] {
			if _, err := tx.RemoveEntity(id); err != nil {
				return component, err
			}
		}
	}

	order := make([]domain.EntityID, 0, len(state.SubStates))
	for _, sub := range state.SubStates {
		if id, ok := current[sub.Name]; ok {
			if _, err := tx.ModifyEntity(id, func(m *domain.MutableEntity) error {
				setStateFields(m, sub.Attributes, sub.Body)
				return nil
			}); err != nil {
				return component, err
			}
			order = append(order, id)
			continue
		}
		e, err := workspace.AddSubState(tx, s.types, s.source, component, sub.Name, sub.Attributes, sub.Body)
		if err != nil {
			return component, err
		}
		order = append(order, e.ID())
	}

	if slices.Equal(order, tx.ResolveReference(component, workspace.FieldSubStates).All()) {
		return component, nil
	}
	_, err := tx.ModifyEntity(component, func(m *domain.MutableEntity) error {
		m.Set(workspace.FieldSubStates, domain.Refs(order))
		return nil
	})
	return component, err
}

func setStateFields(m *domain.MutableEntity, attributes []string, body string) {
	if len(attributes) > 0 {
		m.Set(workspace.FieldAttributes, domain.Strings(attributes))
	} else {
		m.Unset(workspace.FieldAttributes)
	}
	if body != "" {
		m.Set(workspace.FieldBody, domain.String(body))
	} else {
		m.Unset(workspace.FieldBody)
	}
}

// LoadComponentState reads the stored state of component name.
func (s *Service) LoadComponentState(ctx context.Context, name string) (ComponentState, error) {
	var state ComponentState
	err := s.store.View(ctx, func(v domain.SnapshotView) error {
		component, ok := workspace.FindByName(v, s.types.Component, name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrComponentNotFound, name)
		}
		state.Attributes = component.Strings(workspace.FieldAttributes)
		state.Body = component.Text(workspace.FieldBody)
		for _, sub := range workspace.SubStates(v, component.ID()) {
			state.SubStates = append(state.SubStates, SubState{
				Name:       sub.Text(workspace.FieldName),
				Attributes: sub.Strings(workspace.FieldAttributes),
				Body:       sub.Text(workspace.FieldBody),
			})
		}
		return nil
	})
	return state, err
}
