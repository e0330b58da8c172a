// Package workspace declares the project-model entity types stored by the
// engine: modules with their content and source roots, libraries, facets,
// component states and the self-linked and sealed-payload test shapes.
package workspace

import (
	"fmt"

	"workspacemodel/pkg/domain"
)

// Schema names.
const (
	SourceRootType  = "SourceRoot"
	ContentRootType = "ContentRoot"
	LibraryType     = "Library"
	ModuleType      = "Module"
	FacetType       = "Facet"
	SelfLinkedType  = "SelfLinked"
	WithSealedType  = "WithSealed"
	SubStateType    = "SubState"
	ComponentType   = "Component"
)

// Field names shared by several schemas.
const (
	FieldName         = "name"
	FieldURL          = "url"
	FieldModule       = "module"
	FieldChildren     = "children"
	FieldContentRoots = "contentRoots"
	FieldSourceRoots  = "sourceRoots"
	FieldExcludedURLs = "excludedUrls"
	FieldRootType     = "rootType"
	FieldModuleType   = "type"
	FieldDependencies = "dependencies"
	FieldSdk          = "sdk"
	FieldTableID      = "tableId"
	FieldRoots        = "roots"
	FieldFacetType    = "facetType"
	FieldConfig       = "configuration"
	FieldClasses      = "classes"
	FieldInterfaces   = "interfaces"
	FieldSubStates    = "subStates"
	FieldAttributes   = "attributes"
	FieldBody         = "body"
)

func strongMany(name, target string) domain.FieldSpec {
	return domain.FieldSpec{Name: name, Kind: domain.KindReference, Target: target, Cardinality: domain.OrderedMany, Ownership: domain.Strong}
}

func weak(name, target string, c domain.Cardinality) domain.FieldSpec {
	return domain.FieldSpec{Name: name, Kind: domain.KindReference, Target: target, Cardinality: c, Ownership: domain.Weak}
}

func required(name string, kind domain.FieldKind) domain.FieldSpec {
	return domain.FieldSpec{Name: name, Kind: kind, Required: true}
}

func optional(name string, kind domain.FieldKind) domain.FieldSpec {
	return domain.FieldSpec{Name: name, Kind: kind}
}

// Schemas returns every workspace schema in registration order. A schema
// only references schemas listed before it, or itself.
func Schemas() []domain.Schema {
	return []domain.Schema{
		{
			Name:          SourceRootType,
			RequiresOwner: true,
			Fields: []domain.FieldSpec{
				required(FieldURL, domain.KindString),
				required(FieldRootType, domain.KindString),
			},
		},
		{
			Name:          ContentRootType,
			RequiresOwner: true,
			Fields: []domain.FieldSpec{
				required(FieldURL, domain.KindString),
				optional(FieldExcludedURLs, domain.KindStrings),
				strongMany(FieldSourceRoots, SourceRootType),
			},
		},
		{
			Name: LibraryType,
			Fields: []domain.FieldSpec{
				required(FieldName, domain.KindString),
				{Name: FieldTableID, Kind: domain.KindVariant, Required: true, Variants: libraryTableTags},
				optional(FieldRoots, domain.KindStrings),
			},
		},
		{
			Name: ModuleType,
			Fields: []domain.FieldSpec{
				required(FieldName, domain.KindString),
				optional(FieldModuleType, domain.KindString),
				strongMany(FieldContentRoots, ContentRootType),
				{Name: FieldDependencies, Kind: domain.KindVariantList, Variants: dependencyTags},
				weak(FieldSdk, LibraryType, domain.OptionalOne),
			},
		},
		{
			Name: FacetType,
			Fields: []domain.FieldSpec{
				required(FieldName, domain.KindString),
				required(FieldFacetType, domain.KindString),
				optional(FieldConfig, domain.KindString),
				weak(FieldModule, ModuleType, domain.RequiredOne),
			},
		},
		{
			Name: SelfLinkedType,
			Fields: []domain.FieldSpec{
				strongMany(FieldChildren, SelfLinkedType),
			},
		},
		{
			Name: WithSealedType,
			Fields: []domain.FieldSpec{
				{Name: FieldClasses, Kind: domain.KindVariantList, Variants: sealedClassTags},
				{Name: FieldInterfaces, Kind: domain.KindVariantList, Variants: sealedInterfaceTags},
			},
		},
		{
			Name:          SubStateType,
			RequiresOwner: true,
			Fields: []domain.FieldSpec{
				required(FieldName, domain.KindString),
				optional(FieldAttributes, domain.KindStrings),
				optional(FieldBody, domain.KindString),
			},
		},
		{
			Name: ComponentType,
			Fields: []domain.FieldSpec{
				required(FieldName, domain.KindString),
				optional(FieldAttributes, domain.KindStrings),
				optional(FieldBody, domain.KindString),
				strongMany(FieldSubStates, SubStateType),
			},
		},
	}
}

// Types holds the registered tag of every workspace schema.
type Types struct {
	SourceRoot  domain.EntityType
	ContentRoot domain.EntityType
	Library     domain.EntityType
	Module      domain.EntityType
	Facet       domain.EntityType
	SelfLinked  domain.EntityType
	WithSealed  domain.EntityType
	SubState    domain.EntityType
	Component   domain.EntityType
}

// Register adds every workspace schema to reg. Registering into a registry
// that already holds identical schemas returns the existing tags.
func Register(reg *domain.Registry) (Types, error) {
	tags := make(map[string]domain.EntityType)
	for _, schema := range Schemas() {
		t, err := reg.RegisterType(schema)
		if err != nil {
			return Types{}, fmt.Errorf("register %s: %w", schema.Name, err)
		}
		tags[schema.Name] = t
	}
	return Types{
		SourceRoot:  tags[SourceRootType],
		ContentRoot: tags[ContentRootType],
		Library:     tags[LibraryType],
		Module:      tags[ModuleType],
		Facet:       tags[FacetType],
		SelfLinked:  tags[SelfLinkedType],
		WithSealed:  tags[WithSealedType],
		SubState:    tags[SubStateType],
		Component:   tags[ComponentType],
	}, nil
}

// NewRegistry returns a registry holding every workspace schema.
func NewRegistry() (*domain.Registry, Types) {
	reg := domain.NewRegistry()
	types, err := Register(reg)
	if err != nil {
		panic(err)
	}
	return reg, types
}
