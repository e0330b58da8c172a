package workspace

import (
	"fmt"
	"strings"

	"workspacemodel/pkg/domain"
)

// Variant tags.
const (
	tagModuleDependency       = "module"
	tagLibraryDependency      = "library"
	tagSdkDependency          = "sdk"
	tagInheritedSdkDependency = "inherited_sdk"
	tagModuleSourceDependency = "module_source"

	tagProjectLibraryTable = "project"
	tagModuleLibraryTable  = "module"
	tagGlobalLibraryTable  = "global"

	tagSealedClassOne     = "class_one"
	tagSealedClassTwo     = "class_two"
	tagSealedInterfaceOne = "interface_one"
	tagSealedInterfaceTwo = "interface_two"
)

var (
	dependencyTags = []string{
		tagModuleDependency, tagLibraryDependency, tagSdkDependency,
		tagInheritedSdkDependency, tagModuleSourceDependency,
	}
	libraryTableTags    = []string{tagProjectLibraryTable, tagModuleLibraryTable, tagGlobalLibraryTable}
	sealedClassTags     = []string{tagSealedClassOne, tagSealedClassTwo}
	sealedInterfaceTags = []string{tagSealedInterfaceOne, tagSealedInterfaceTwo}
)

// DependencyItem is one entry of a module's ordered dependency list.
type DependencyItem interface {
	isDependencyItem()
}

// ModuleDependency depends on another module by name.
type ModuleDependency struct {
	Module   string
	Exported bool
	Scope    string
}

// LibraryDependency depends on a library in a given table.
type LibraryDependency struct {
	Library  string
	Table    LibraryTableID
	Exported bool
	Scope    string
}

// SdkDependency pins an explicit SDK.
type SdkDependency struct {
	Name string
	Kind string
}

// InheritedSdkDependency uses the project SDK.
type InheritedSdkDependency struct{}

// ModuleSourceDependency marks the position of the module's own sources.
type ModuleSourceDependency struct{}

func (ModuleDependency) isDependencyItem()       {}
func (LibraryDependency) isDependencyItem()      {}
func (SdkDependency) isDependencyItem()          {}
func (InheritedSdkDependency) isDependencyItem() {}
func (ModuleSourceDependency) isDependencyItem() {}

// LibraryTableID names the table a library is declared in.
type LibraryTableID interface {
	isLibraryTableID()
}

// ProjectLibraryTable is the project-level table.
type ProjectLibraryTable struct{}

// ModuleLibraryTable is the private table of one module.
type ModuleLibraryTable struct {
	Module string
}

// GlobalLibraryTable is an application-level table.
type GlobalLibraryTable struct {
	Level string
}

func (ProjectLibraryTable) isLibraryTableID() {}
func (ModuleLibraryTable) isLibraryTableID()  {}
func (GlobalLibraryTable) isLibraryTableID()  {}

// SealedClass and SealedInterface are the closed payload families of the
// WithSealed entity.
type SealedClass interface {
	isSealedClass()
}

// SealedClassOne is the first SealedClass case.
type SealedClassOne struct{ Info string }

// SealedClassTwo is the second SealedClass case.
type SealedClassTwo struct{ Info string }

func (SealedClassOne) isSealedClass() {}
func (SealedClassTwo) isSealedClass() {}

// SealedInterface is a closed family of interface payloads.
type SealedInterface interface {
	isSealedInterface()
}

// SealedInterfaceOne is the first SealedInterface case.
type SealedInterfaceOne struct{ Info string }

// SealedInterfaceTwo is the second SealedInterface case.
type SealedInterfaceTwo struct{ Info string }

func (SealedInterfaceOne) isSealedInterface() {}
func (SealedInterfaceTwo) isSealedInterface() {}

// TableKey is the key a library table id is flattened to inside dependency
// payloads, which hold scalars only.
func TableKey(id LibraryTableID) string {
	switch v := id.(type) {
	case nil, ProjectLibraryTable:
		return tagProjectLibraryTable
	case ModuleLibraryTable:
		return tagModuleLibraryTable + ":" + v.Module
	case GlobalLibraryTable:
		return tagGlobalLibraryTable + ":" + v.Level
	default:
		panic(fmt.Sprintf("workspace: unhandled library table %T", id))
	}
}

func parseTableKey(key string) (LibraryTableID, error) {
	kind, arg, _ := strings.Cut(key, ":")
	switch kind {
	case tagProjectLibraryTable:
		return ProjectLibraryTable{}, nil
	case tagModuleLibraryTable:
		return ModuleLibraryTable{Module: arg}, nil
	case tagGlobalLibraryTable:
		return GlobalLibraryTable{Level: arg}, nil
	default:
		return nil, fmt.Errorf("unknown library table %q", key)
	}
}

// LibraryTableVariant encodes a table id.
func LibraryTableVariant(id LibraryTableID) domain.Variant {
	switch v := id.(type) {
	case nil, ProjectLibraryTable:
		return domain.NewVariant(tagProjectLibraryTable, nil)
	case ModuleLibraryTable:
		return domain.NewVariant(tagModuleLibraryTable, domain.Fields{"module": domain.String(v.Module)})
	case GlobalLibraryTable:
		return domain.NewVariant(tagGlobalLibraryTable, domain.Fields{"level": domain.String(v.Level)})
	default:
		panic(fmt.Sprintf("workspace: unhandled library table %T", id))
	}
}

// LibraryTableFromVariant decodes a table id.
func LibraryTableFromVariant(v domain.Variant) (LibraryTableID, error) {
	switch v.Tag {
	case tagProjectLibraryTable:
		return ProjectLibraryTable{}, nil
	case tagModuleLibraryTable:
		return ModuleLibraryTable{Module: text(v.Fields, "module")}, nil
	case tagGlobalLibraryTable:
		return GlobalLibraryTable{Level: text(v.Fields, "level")}, nil
	default:
		return nil, fmt.Errorf("unknown library table tag %q", v.Tag)
	}
}

// DependencyVariant encodes a dependency item.
func DependencyVariant(item DependencyItem) domain.Variant {
	switch v := item.(type) {
	case ModuleDependency:
		return domain.NewVariant(tagModuleDependency, domain.Fields{
			"module":   domain.String(v.Module),
			"exported": domain.Bool(v.Exported),
			"scope":    domain.String(v.Scope),
		})
	case LibraryDependency:
		return domain.NewVariant(tagLibraryDependency, domain.Fields{
			"library":  domain.String(v.Library),
			"table":    domain.String(TableKey(v.Table)),
			"exported": domain.Bool(v.Exported),
			"scope":    domain.String(v.Scope),
		})
	case SdkDependency:
		return domain.NewVariant(tagSdkDependency, domain.Fields{
			"name": domain.String(v.Name),
			"kind": domain.String(v.Kind),
		})
	case InheritedSdkDependency:
		return domain.NewVariant(tagInheritedSdkDependency, nil)
	case ModuleSourceDependency:
		return domain.NewVariant(tagModuleSourceDependency, nil)
	default:
		panic(fmt.Sprintf("workspace: unhandled dependency %T", item))
	}
}

// DependencyFromVariant decodes a dependency item.
func DependencyFromVariant(v domain.Variant) (DependencyItem, error) {
	switch v.Tag {
	case tagModuleDependency:
		return ModuleDependency{
			Module:   text(v.Fields, "module"),
			Exported: flag(v.Fields, "exported"),
			Scope:    text(v.Fields, "scope"),
		}, nil
	case tagLibraryDependency:
		table, err := parseTableKey(text(v.Fields, "table"))
		if err != nil {
			return nil, err
		}
		return LibraryDependency{
			Library:  text(v.Fields, "library"),
			Table:    table,
			Exported: flag(v.Fields, "exported"),
			Scope:    text(v.Fields, "scope"),
		}, nil
	case tagSdkDependency:
		return SdkDependency{Name: text(v.Fields, "name"), Kind: text(v.Fields, "kind")}, nil
	case tagInheritedSdkDependency:
		return InheritedSdkDependency{}, nil
	case tagModuleSourceDependency:
		return ModuleSourceDependency{}, nil
	default:
		return nil, fmt.Errorf("unknown dependency tag %q", v.Tag)
	}
}

// SealedClassVariant encodes a SealedClass.
func SealedClassVariant(c SealedClass) domain.Variant {
	switch v := c.(type) {
	case SealedClassOne:
		return domain.NewVariant(tagSealedClassOne, domain.Fields{"info": domain.String(v.Info)})
	case SealedClassTwo:
		return domain.NewVariant(tagSealedClassTwo, domain.Fields{"info": domain.String(v.Info)})
	default:
		panic(fmt.Sprintf("workspace: unhandled sealed class %T", c))
	}
}

// SealedClassFromVariant decodes a SealedClass.
func SealedClassFromVariant(v domain.Variant) (SealedClass, error) {
	switch v.Tag {
	case tagSealedClassOne:
		return SealedClassOne{Info: text(v.Fields, "info")}, nil
	case tagSealedClassTwo:
		return SealedClassTwo{Info: text(v.Fields, "info")}, nil
	default:
		return nil, fmt.Errorf("unknown sealed class tag %q", v.Tag)
	}
}

// SealedInterfaceVariant encodes a SealedInterface.
func SealedInterfaceVariant(i SealedInterface) domain.Variant {
	switch v := i.(type) {
	case SealedInterfaceOne:
		return domain.NewVariant(tagSealedInterfaceOne, domain.Fields{"info": domain.String(v.Info)})
	case SealedInterfaceTwo:
		return domain.NewVariant(tagSealedInterfaceTwo, domain.Fields{"info": domain.String(v.Info)})
	default:
		panic(fmt.Sprintf("workspace: unhandled sealed interface %T", i))
	}
}

// SealedInterfaceFromVariant decodes a SealedInterface.
func SealedInterfaceFromVariant(v domain.Variant) (SealedInterface, error) {
	switch v.Tag {
	case tagSealedInterfaceOne:
		return SealedInterfaceOne{Info: text(v.Fields, "info")}, nil
	case tagSealedInterfaceTwo:
		return SealedInterfaceTwo{Info: text(v.Fields, "info")}, nil
	default:
		return nil, fmt.Errorf("unknown sealed interface tag %q", v.Tag)
	}
}

func text(f domain.Fields, name string) string {
	s, _ := f[name].(domain.String)
	return string(s)
}

func flag(f domain.Fields, name string) bool {
	b, _ := f[name].(domain.Bool)
	return bool(b)
}
