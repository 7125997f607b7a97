// Package store provides the in-memory chunk store: chunks are validated on
// insertion and indexed per entity, timeline and component so that queries
// can fetch the chunks relevant to a time range or a point in time.
package store

import (
	"sort"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/arkilian/chunkstore/internal/chunk"
	"github.com/arkilian/chunkstore/internal/errors"
	"github.com/arkilian/chunkstore/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StoreID identifies a store instance.
type StoreID string

// NewStoreID returns a random store id.
func NewStoreID() StoreID {
	return StoreID(uuid.NewString())
}

// Config configures a ChunkStore.
type Config struct {
	// ID is the store identifier. A random one is generated when empty.
	ID StoreID

	// Metrics receives insertion metrics. May be nil.
	Metrics *Metrics
}

// ChunkStore holds chunks in memory. It is safe for concurrent use.
type ChunkStore struct {
	id      StoreID
	logger  *zap.Logger
	metrics *Metrics

	mu sync.RWMutex

	chunks map[chunk.ChunkID]*chunk.Chunk

	// temporal indexes chunks per entity, timeline and component.
	temporal map[types.EntityPath]map[string]map[types.ComponentDescriptor][]*indexedChunk

	// static indexes timeless chunks per entity and component.
	static map[types.EntityPath]map[types.ComponentDescriptor][]*chunk.Chunk

	columns   map[types.EntityPath]map[types.ComponentDescriptor]*columnInfo
	timelines map[string]types.Timeline

	subscribers []func(Event)
	eventID     uint64
}

// indexedChunk caches the time range a component covers in a chunk.
type indexedChunk struct {
	chunk     *chunk.Chunk
	timeRange types.TimeRange
}

type columnInfo struct {
	datatype  arrow.DataType
	isStatic  bool
	timelines map[string]struct{}
}

// New creates an empty store.
func New(cfg Config, logger *zap.Logger) *ChunkStore {
	if cfg.ID == "" {
		cfg.ID = NewStoreID()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChunkStore{
		id:        cfg.ID,
		logger:    logger.With(zap.String("store_id", string(cfg.ID))),
		metrics:   cfg.Metrics,
		chunks:    make(map[chunk.ChunkID]*chunk.Chunk),
		temporal:  make(map[types.EntityPath]map[string]map[types.ComponentDescriptor][]*indexedChunk),
		static:    make(map[types.EntityPath]map[types.ComponentDescriptor][]*chunk.Chunk),
		columns:   make(map[types.EntityPath]map[types.ComponentDescriptor]*columnInfo),
		timelines: make(map[string]types.Timeline),
	}
}

// ID returns the store identifier.
func (s *ChunkStore) ID() StoreID {
	return s.id
}

// EventKind describes what happened to the store.
type EventKind int

const (
	// EventAddition reports a newly inserted chunk.
	EventAddition EventKind = iota
)

func (k EventKind) String() string {
	switch k {
	case EventAddition:
		return "addition"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers whenever the store changes.
type Event struct {
	StoreID StoreID
	EventID uint64
	Kind    EventKind
	Chunk   *chunk.Chunk
}

// Subscribe registers fn to be called for every future event. fn runs
// synchronously on the inserting goroutine and must not call back into the
// store's mutating methods.
func (s *ChunkStore) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// InsertChunk validates c and adds it to the store. Inserting a chunk whose
// id is already present is a no-op, as is inserting an empty chunk.
func (s *ChunkStore) InsertChunk(c *chunk.Chunk) ([]Event, error) {
	if err := c.SanityCheck(); err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, nil
	}

	s.mu.Lock()
	if _, exists := s.chunks[c.ID()]; exists {
		s.mu.Unlock()
		s.logger.Debug("Chunk already present, skipping", zap.Stringer("chunk_id", c.ID()))
		return nil, nil
	}
	if err := s.checkDatatypesLocked(c); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.indexLocked(c)

	s.eventID++
	events := []Event{{StoreID: s.id, EventID: s.eventID, Kind: EventAddition, Chunk: c}}
	subscribers := append([]func(Event){}, s.subscribers...)
	s.mu.Unlock()

	s.metrics.observeInsert(c)
	s.logger.Debug("Chunk inserted",
		zap.Stringer("chunk_id", c.ID()),
		zap.String("entity_path", c.EntityPath().String()),
		zap.Int("rows", c.NumRows()),
		zap.Bool("static", c.IsStatic()))

	for _, fn := range subscribers {
		for _, ev := range events {
			fn(ev)
		}
	}
	return events, nil
}

func (s *ChunkStore) checkDatatypesLocked(c *chunk.Chunk) error {
	for _, tc := range c.Timelines() {
		known, ok := s.timelines[tc.Name()]
		if ok && known.Type != tc.Timeline().Type {
			return errors.Newf(errors.ErrCategoryStore, errors.CodeDatatypeMismatch,
				"timeline %q was logged as %s, got %s", tc.Name(), known.Type, tc.Timeline().Type)
		}
	}

	perDesc := s.columns[c.EntityPath()]
	for _, col := range c.Components().All() {
		info, ok := perDesc[col.Descriptor]
		if ok && !arrow.TypeEqual(info.datatype, col.List.DataType()) {
			return errors.Newf(errors.ErrCategoryStore, errors.CodeDatatypeMismatch,
				"component %s of %s was logged as %s, got %s",
				col.Descriptor, c.EntityPath(), info.datatype, col.List.DataType())
		}
	}
	return nil
}

func (s *ChunkStore) indexLocked(c *chunk.Chunk) {
	entity := c.EntityPath()
	s.chunks[c.ID()] = c

	perDesc, ok := s.columns[entity]
	if !ok {
		perDesc = make(map[types.ComponentDescriptor]*columnInfo)
		s.columns[entity] = perDesc
	}
	for _, col := range c.Components().All() {
		info, ok := perDesc[col.Descriptor]
		if !ok {
			info = &columnInfo{datatype: col.List.DataType(), timelines: make(map[string]struct{})}
			perDesc[col.Descriptor] = info
		}
		if c.IsStatic() {
			info.isStatic = true
		}
		for _, tc := range c.Timelines() {
			info.timelines[tc.Name()] = struct{}{}
		}
	}

	if c.IsStatic() {
		perComp, ok := s.static[entity]
		if !ok {
			perComp = make(map[types.ComponentDescriptor][]*chunk.Chunk)
			s.static[entity] = perComp
		}
		for _, desc := range c.ComponentDescriptors() {
			perComp[desc] = append(perComp[desc], c)
		}
		return
	}

	perTimeline, ok := s.temporal[entity]
	if !ok {
		perTimeline = make(map[string]map[types.ComponentDescriptor][]*indexedChunk)
		s.temporal[entity] = perTimeline
	}
	for name, ranges := range c.TimeRangePerComponent() {
		tc, _ := c.Timeline(name)
		s.timelines[name] = tc.Timeline()

		perComp, ok := perTimeline[name]
		if !ok {
			perComp = make(map[types.ComponentDescriptor][]*indexedChunk)
			perTimeline[name] = perComp
		}
		for desc, r := range ranges {
			entries := append(perComp[desc], &indexedChunk{chunk: c, timeRange: r})
			sort.SliceStable(entries, func(i, j int) bool {
				if entries[i].timeRange.Min != entries[j].timeRange.Min {
					return entries[i].timeRange.Min < entries[j].timeRange.Min
				}
				return entries[i].chunk.ID().Compare(entries[j].chunk.ID()) < 0
			})
			perComp[desc] = entries
		}
	}
}

// Chunk returns the chunk with the given id.
func (s *ChunkStore) Chunk(id chunk.ChunkID) (*chunk.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	return c, ok
}

// NumChunks returns the number of chunks in the store.
func (s *ChunkStore) NumChunks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}
