package chunk

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/arkilian/chunkstore/pkg/types"
)

// Components maps a component name to every descriptor logged under that
// name, and each descriptor to its list array. Each list array has one entry
// per chunk row; a null entry means the row carries no data for the column.
type Components map[types.ComponentName]map[types.ComponentDescriptor]*array.List

// DescriptorColumn pairs a descriptor with its column.
type DescriptorColumn struct {
	Descriptor types.ComponentDescriptor
	List       *array.List
}

// Insert stores list under desc, replacing and returning any previous column.
func (c Components) Insert(desc types.ComponentDescriptor, list *array.List) *array.List {
	desc = desc.Normalized()
	perDesc, ok := c[desc.ComponentName]
	if !ok {
		perDesc = make(map[types.ComponentDescriptor]*array.List)
		c[desc.ComponentName] = perDesc
	}
	previous := perDesc[desc]
	perDesc[desc] = list
	return previous
}

// Get looks up the column for a descriptor, normalized the same way Insert
// normalizes it.
func (c Components) Get(desc types.ComponentDescriptor) (*array.List, bool) {
	desc = desc.Normalized()
	list, ok := c[desc.ComponentName][desc]
	return list, ok
}

func (c Components) Contains(desc types.ComponentDescriptor) bool {
	_, ok := c.Get(desc)
	return ok
}

// GetByName returns every column logged under name, ordered by descriptor.
func (c Components) GetByName(name types.ComponentName) []DescriptorColumn {
	perDesc := c[name]
	cols := make([]DescriptorColumn, 0, len(perDesc))
	for desc, list := range perDesc {
		cols = append(cols, DescriptorColumn{Descriptor: desc, List: list})
	}
	sortColumns(cols)
	return cols
}

// FirstByName returns the first column logged under name in descriptor order.
// Untagged descriptors sort before tagged ones, so an untagged column wins
// whenever one exists. Which tagged variant wins among several is only
// determined by that ordering and carries no further meaning.
func (c Components) FirstByName(name types.ComponentName) (DescriptorColumn, bool) {
	cols := c.GetByName(name)
	if len(cols) == 0 {
		return DescriptorColumn{}, false
	}
	return cols[0], true
}

// ComponentNames returns the sorted component names.
func (c Components) ComponentNames() []types.ComponentName {
	names := make([]types.ComponentName, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Descriptors returns every descriptor, sorted.
func (c Components) Descriptors() []types.ComponentDescriptor {
	all := c.All()
	descs := make([]types.ComponentDescriptor, len(all))
	for i, col := range all {
		descs[i] = col.Descriptor
	}
	return descs
}

// All flattens the map into (descriptor, column) pairs, sorted by descriptor.
func (c Components) All() []DescriptorColumn {
	cols := make([]DescriptorColumn, 0, c.Len())
	for _, perDesc := range c {
		for desc, list := range perDesc {
			cols = append(cols, DescriptorColumn{Descriptor: desc, List: list})
		}
	}
	sortColumns(cols)
	return cols
}

// Len returns the total number of columns.
func (c Components) Len() int {
	n := 0
	for _, perDesc := range c {
		n += len(perDesc)
	}
	return n
}

// Clone returns a copy of the map structure. Columns are shared.
func (c Components) Clone() Components {
	out := make(Components, len(c))
	for name, perDesc := range c {
		cp := make(map[types.ComponentDescriptor]*array.List, len(perDesc))
		for desc, list := range perDesc {
			cp[desc] = list
		}
		out[name] = cp
	}
	return out
}

func sortColumns(cols []DescriptorColumn) {
	sort.Slice(cols, func(i, j int) bool { return cols[i].Descriptor.Less(cols[j].Descriptor) })
}
