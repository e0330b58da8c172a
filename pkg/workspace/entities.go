package workspace

import (
	"fmt"

	"workspacemodel/pkg/domain"
)

// NewModule adds a module with the given dependency list.
func NewModule(tx domain.Transaction, t Types, src domain.EntitySource, name, moduleType string, deps ...DependencyItem) (domain.Entity, error) {
	fields := domain.Fields{FieldName: domain.String(name)}
	if moduleType != "" {
		fields[FieldModuleType] = domain.String(moduleType)
	}
	if len(deps) > 0 {
		fields[FieldDependencies] = dependencyList(deps)
	}
	return tx.AddEntity(t.Module, src, fields)
}

// SetDependencies replaces the dependency list of a module.
func SetDependencies(tx domain.Transaction, module domain.EntityID, deps []DependencyItem) error {
	_, err := tx.ModifyEntity(module, func(m *domain.MutableEntity) error {
		if len(deps) == 0 {
			m.Unset(FieldDependencies)
			return nil
		}
		m.Set(FieldDependencies, dependencyList(deps))
		return nil
	})
	return err
}

func dependencyList(deps []DependencyItem) domain.Variants {
	out := make(domain.Variants, len(deps))
	for i, d := range deps {
		out[i] = DependencyVariant(d)
	}
	return out
}

// Dependencies decodes the dependency list of a module.
func Dependencies(module domain.Entity) ([]DependencyItem, error) {
	variants := module.Variants(FieldDependencies)
	out := make([]DependencyItem, 0, len(variants))
	for _, v := range variants {
		item, err := DependencyFromVariant(v)
		if err != nil {
			return nil, fmt.Errorf("%s dependencies: %w", module.ID(), err)
		}
		out = append(out, item)
	}
	return out, nil
}

// AddContentRoot adds a content root owned by module.
func AddContentRoot(tx domain.Transaction, t Types, src domain.EntitySource, module domain.EntityID, url string, excluded ...string) (domain.Entity, error) {
	fields := domain.Fields{FieldURL: domain.String(url)}
	if len(excluded) > 0 {
		fields[FieldExcludedURLs] = domain.Strings(excluded)
	}
	return addChild(tx, t.ContentRoot, src, fields, module, FieldContentRoots)
}

// AddSourceRoot adds a source root owned by a content root.
func AddSourceRoot(tx domain.Transaction, t Types, src domain.EntitySource, contentRoot domain.EntityID, url, rootType string) (domain.Entity, error) {
	fields := domain.Fields{FieldURL: domain.String(url), FieldRootType: domain.String(rootType)}
	return addChild(tx, t.SourceRoot, src, fields, contentRoot, FieldSourceRoots)
}

func addChild(tx domain.Transaction, typ domain.EntityType, src domain.EntitySource, fields domain.Fields, owner domain.EntityID, field string) (domain.Entity, error) {
	child, err := tx.AddEntity(typ, src, fields)
	if err != nil {
		return domain.Entity{}, err
	}
	if err := tx.AddEdge(owner, field, child.ID()); err != nil {
		return domain.Entity{}, err
	}
	return child, nil
}

// NewLibrary adds a library declared in table.
func NewLibrary(tx domain.Transaction, t Types, src domain.EntitySource, name string, table LibraryTableID, roots ...string) (domain.Entity, error) {
	fields := domain.Fields{
		FieldName:    domain.String(name),
		FieldTableID: LibraryTableVariant(table),
	}
	if len(roots) > 0 {
		fields[FieldRoots] = domain.Strings(roots)
	}
	return tx.AddEntity(t.Library, src, fields)
}

// LibraryTable decodes the table a library is declared in.
func LibraryTable(library domain.Entity) (LibraryTableID, error) {
	v, ok := library.Variant(FieldTableID)
	if !ok {
		return nil, fmt.Errorf("%s has no table id", library.ID())
	}
	return LibraryTableFromVariant(v)
}

// NewFacet attaches a facet to module.
func NewFacet(tx domain.Transaction, t Types, src domain.EntitySource, module domain.EntityID, name, facetType, configuration string) (domain.Entity, error) {
	fields := domain.Fields{
		FieldName:      domain.String(name),
		FieldFacetType: domain.String(facetType),
		FieldModule:    domain.Ref(module),
	}
	if configuration != "" {
		fields[FieldConfig] = domain.String(configuration)
	}
	return tx.AddEntity(t.Facet, src, fields)
}

// NewSelfLinked adds a self-linked entity, optionally as a child of parent.
func NewSelfLinked(tx domain.Transaction, t Types, src domain.EntitySource, parent *domain.EntityID) (domain.Entity, error) {
	if parent == nil {
		return tx.AddEntity(t.SelfLinked, src, nil)
	}
	return addChild(tx, t.SelfLinked, src, nil, *parent, FieldChildren)
}

// Parent returns the strong owner of a self-linked entity.
func Parent(view domain.RuleView, id domain.EntityID) (domain.EntityID, bool) {
	edge, ok := view.Owner(id)
	if !ok {
		return domain.EntityID{}, false
	}
	return edge.Owner, true
}

// NewWithSealed adds an entity carrying sealed payload lists.
func NewWithSealed(tx domain.Transaction, t Types, src domain.EntitySource, classes []SealedClass, interfaces []SealedInterface) (domain.Entity, error) {
	fields := domain.Fields{}
	if len(classes) > 0 {
		list := make(domain.Variants, len(classes))
		for i, c := range classes {
			list[i] = SealedClassVariant(c)
		}
		fields[FieldClasses] = list
	}
	if len(interfaces) > 0 {
		list := make(domain.Variants, len(interfaces))
		for i, c := range interfaces {
			list[i] = SealedInterfaceVariant(c)
		}
		fields[FieldInterfaces] = list
	}
	return tx.AddEntity(t.WithSealed, src, fields)
}

// SealedClasses decodes the classes list.
func SealedClasses(e domain.Entity) ([]SealedClass, error) {
	var out []SealedClass
	for _, v := range e.Variants(FieldClasses) {
		c, err := SealedClassFromVariant(v)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// SealedInterfaces decodes the interfaces list.
func SealedInterfaces(e domain.Entity) ([]SealedInterface, error) {
	var out []SealedInterface
	for _, v := range e.Variants(FieldInterfaces) {
		c, err := SealedInterfaceFromVariant(v)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// NewComponent adds a component state root.
func NewComponent(tx domain.Transaction, t Types, src domain.EntitySource, name string, attributes []string, body string) (domain.Entity, error) {
	if err := CheckStateMarkup(attributes, body); err != nil {
		return domain.Entity{}, fmt.Errorf("component %s: %w", name, err)
	}
	return tx.AddEntity(t.Component, src, stateFields(name, attributes, body))
}

// AddSubState adds a sub-state owned by component, after any existing ones.
func AddSubState(tx domain.Transaction, t Types, src domain.EntitySource, component domain.EntityID, name string, attributes []string, body string) (domain.Entity, error) {
	if err := CheckStateMarkup(attributes, body); err != nil {
		return domain.Entity{}, fmt.Errorf("sub-state %s: %w", name, err)
	}
	return addChild(tx, t.SubState, src, stateFields(name, attributes, body), component, FieldSubStates)
}

func stateFields(name string, attributes []string, body string) domain.Fields {
	fields := domain.Fields{FieldName: domain.String(name)}
	if len(attributes) > 0 {
		fields[FieldAttributes] = domain.Strings(attributes)
	}
	if body != "" {
		fields[FieldBody] = domain.String(body)
	}
	return fields
}

// FindByName returns the first entity of t whose name field equals name.
func FindByName(view domain.RuleView, t domain.EntityType, name string) (domain.Entity, bool) {
	for e := range view.EntitiesOfType(t) {
		if e.Text(FieldName) == name {
			return e, true
		}
	}
	return domain.Entity{}, false
}

// SubStates returns the sub-states of a component in list order.
func SubStates(view domain.RuleView, component domain.EntityID) []domain.Entity {
	var out []domain.Entity
	for _, id := range view.ResolveReference(component, FieldSubStates).All() {
		if e, ok := view.Get(id); ok {
			out = append(out, e)
		}
	}
	return out
}
