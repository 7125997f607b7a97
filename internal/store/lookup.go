package store

import (
	"github.com/arkilian/chunkstore/internal/chunk"
	"github.com/arkilian/chunkstore/pkg/types"
)

// RangeRelevantChunks returns the temporal chunks of entity whose data for
// desc may intersect q, ordered by the start of their time range.
func (s *ChunkStore) RangeRelevantChunks(q chunk.RangeQuery, entity types.EntityPath, desc types.ComponentDescriptor) []*chunk.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*chunk.Chunk
	for _, entry := range s.temporal[entity][q.Timeline][desc] {
		if entry.timeRange.Intersects(q.Range) {
			out = append(out, entry.chunk)
		}
	}
	return out
}

// RangeChunks returns the data of desc on entity within q: one chunk per
// relevant stored chunk, densified for desc and sorted by (time, RowID).
func (s *ChunkStore) RangeChunks(q chunk.RangeQuery, entity types.EntityPath, desc types.ComponentDescriptor) []*chunk.Chunk {
	var out []*chunk.Chunk
	for _, c := range s.RangeRelevantChunks(q, entity, desc) {
		if r := c.Range(q, desc); !r.IsEmpty() {
			out = append(out, r)
		}
	}
	return out
}

// LatestAtRelevantChunks returns the temporal chunks of entity that have data
// for desc at or before q.At.
func (s *ChunkStore) LatestAtRelevantChunks(q chunk.LatestAtQuery, entity types.EntityPath, desc types.ComponentDescriptor) []*chunk.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*chunk.Chunk
	for _, entry := range s.temporal[entity][q.Timeline][desc] {
		if entry.timeRange.Min > q.At {
			// Entries are sorted by range start.
			break
		}
		out = append(out, entry.chunk)
	}
	return out
}

// StaticChunks returns the static chunks of entity carrying desc.
func (s *ChunkStore) StaticChunks(entity types.EntityPath, desc types.ComponentDescriptor) []*chunk.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*chunk.Chunk(nil), s.static[entity][desc]...)
}

// LatestAt returns the single most recent row of desc on entity at q.At.
// Static data always shadows temporal data.
func (s *ChunkStore) LatestAt(q chunk.LatestAtQuery, entity types.EntityPath, desc types.ComponentDescriptor) (*chunk.Chunk, bool) {
	var best *chunk.Chunk
	var bestIndex chunk.Index

	consider := func(c *chunk.Chunk) {
		if c.IsEmpty() {
			return
		}
		idx := c.IterIndices(q.Timeline)[0]
		if best == nil || bestIndex.Less(idx) {
			best, bestIndex = c, idx
		}
	}

	for _, c := range s.StaticChunks(entity, desc) {
		consider(c.LatestAt(q, desc))
	}
	if best != nil {
		return best, true
	}
	for _, c := range s.LatestAtRelevantChunks(q, entity, desc) {
		consider(c.LatestAt(q, desc))
	}
	return best, best != nil
}
