package store

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/arkilian/chunkstore/internal/chunk"
	"github.com/arkilian/chunkstore/pkg/types"
	"github.com/dustin/go-humanize"
)

// ColumnInfo describes one component column known to the store.
type ColumnInfo struct {
	EntityPath types.EntityPath
	Descriptor types.ComponentDescriptor
	DataType   arrow.DataType

	// IsStatic is true when the column has static data.
	IsStatic bool

	// Timelines lists the timelines the column was logged on, sorted.
	Timelines []string
}

// Schema returns every component column, ordered by entity then descriptor.
func (s *ChunkStore) Schema() []ColumnInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ColumnInfo
	for entity, perDesc := range s.columns {
		for desc, info := range perDesc {
			timelines := make([]string, 0, len(info.timelines))
			for name := range info.timelines {
				timelines = append(timelines, name)
			}
			sort.Strings(timelines)
			out = append(out, ColumnInfo{
				EntityPath: entity,
				Descriptor: desc,
				DataType:   info.datatype,
				IsStatic:   info.isStatic,
				Timelines:  timelines,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityPath != out[j].EntityPath {
			return out[i].EntityPath < out[j].EntityPath
		}
		return out[i].Descriptor.Less(out[j].Descriptor)
	})
	return out
}

// Timelines returns every timeline seen in the store, sorted by name.
func (s *ChunkStore) Timelines() []types.Timeline {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Timeline, 0, len(s.timelines))
	for _, tl := range s.timelines {
		out = append(out, tl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Timeline looks up a timeline by name.
func (s *ChunkStore) Timeline(name string) (types.Timeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tl, ok := s.timelines[name]
	return tl, ok
}

// AllEntities returns every entity path with data, sorted.
func (s *ChunkStore) AllEntities() []types.EntityPath {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.EntityPath, 0, len(s.columns))
	for entity := range s.columns {
		out = append(out, entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EntityComponents returns the descriptors logged on entity, sorted.
func (s *ChunkStore) EntityComponents(entity types.EntityPath) []types.ComponentDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.ComponentDescriptor, 0, len(s.columns[entity]))
	for desc := range s.columns[entity] {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// ChunksForEntity returns every chunk of entity, ordered by chunk id.
func (s *ChunkStore) ChunksForEntity(entity types.EntityPath) []*chunk.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*chunk.Chunk
	for _, c := range s.chunks {
		if c.EntityPath() == entity {
			out = append(out, c)
		}
	}
	sortChunks(out)
	return out
}

// AllChunks returns every chunk, ordered by chunk id.
func (s *ChunkStore) AllChunks() []*chunk.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*chunk.Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	sortChunks(out)
	return out
}

func sortChunks(chunks []*chunk.Chunk) {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID().Compare(chunks[j].ID()) < 0 })
}

// EntityStats summarizes the data of one entity.
type EntityStats struct {
	NumChunks     int
	NumRows       uint64
	NumEvents     uint64
	HeapSizeBytes uint64
}

// Stats summarizes the store content.
type Stats struct {
	Static    EntityStats
	Temporal  EntityStats
	PerEntity map[types.EntityPath]EntityStats
}

// Total adds static and temporal statistics together.
func (st Stats) Total() EntityStats {
	return EntityStats{
		NumChunks:     st.Static.NumChunks + st.Temporal.NumChunks,
		NumRows:       st.Static.NumRows + st.Temporal.NumRows,
		NumEvents:     st.Static.NumEvents + st.Temporal.NumEvents,
		HeapSizeBytes: st.Static.HeapSizeBytes + st.Temporal.HeapSizeBytes,
	}
}

// HeapSize formats the heap size for humans, e.g. "1.2 MB".
func (es EntityStats) HeapSize() string {
	return humanize.Bytes(es.HeapSizeBytes)
}

func (es *EntityStats) add(c *chunk.Chunk) {
	es.NumChunks++
	es.NumRows += uint64(c.NumRows())
	es.NumEvents += c.NumEventsCumulative()
	es.HeapSizeBytes += c.HeapSizeBytes()
}

// Stats computes statistics over every chunk in the store.
func (s *ChunkStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{PerEntity: make(map[types.EntityPath]EntityStats)}
	for _, c := range s.chunks {
		if c.IsStatic() {
			st.Static.add(c)
		} else {
			st.Temporal.add(c)
		}
		es := st.PerEntity[c.EntityPath()]
		es.add(c)
		st.PerEntity[c.EntityPath()] = es
	}
	return st
}
