package types

import "strings"

// ComponentName is the logical name of a component, e.g. "example.MyPoint".
type ComponentName string

// ComponentDescriptor identifies a specific logged field: the component name,
// optionally tagged with the archetype and archetype field it was logged through.
// Several descriptors may share a ComponentName.
type ComponentDescriptor struct {
	// ArchetypeName is the archetype the component was logged as part of, if any
	ArchetypeName string

	// ArchetypeFieldName is the field of that archetype, if any
	ArchetypeFieldName string

	// ComponentName is the component's semantic type
	ComponentName ComponentName
}

// NewComponentDescriptor returns an untagged descriptor.
func NewComponentDescriptor(name ComponentName) ComponentDescriptor {
	return ComponentDescriptor{ComponentName: name}
}

// WithArchetype returns a copy of d tagged with archetype and field.
func (d ComponentDescriptor) WithArchetype(archetype, field string) ComponentDescriptor {
	d.ArchetypeName = archetype
	d.ArchetypeFieldName = field
	return d
}

// Normalized trims whitespace from every tag.
func (d ComponentDescriptor) Normalized() ComponentDescriptor {
	return ComponentDescriptor{
		ArchetypeName:      strings.TrimSpace(d.ArchetypeName),
		ArchetypeFieldName: strings.TrimSpace(d.ArchetypeFieldName),
		ComponentName:      ComponentName(strings.TrimSpace(string(d.ComponentName))),
	}
}

// IsTagged reports whether the descriptor carries archetype information.
func (d ComponentDescriptor) IsTagged() bool {
	return d.ArchetypeName != "" || d.ArchetypeFieldName != ""
}

// String formats the descriptor as "archetype:component#field", omitting absent tags.
func (d ComponentDescriptor) String() string {
	var b strings.Builder
	if d.ArchetypeName != "" {
		b.WriteString(d.ArchetypeName)
		b.WriteByte(':')
	}
	b.WriteString(string(d.ComponentName))
	if d.ArchetypeFieldName != "" {
		b.WriteByte('#')
		b.WriteString(d.ArchetypeFieldName)
	}
	return b.String()
}

// Less orders descriptors by component name, then archetype, then field.
func (d ComponentDescriptor) Less(other ComponentDescriptor) bool {
	if d.ComponentName != other.ComponentName {
		return d.ComponentName < other.ComponentName
	}
	if d.ArchetypeName != other.ArchetypeName {
		return d.ArchetypeName < other.ArchetypeName
	}
	return d.ArchetypeFieldName < other.ArchetypeFieldName
}
