package widgets

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// SerializationVersion tags the export format.
	SerializationVersion = "1.0.0"

	// DefaultMaxHistory caps the snapshot log; the oldest entry is evicted first.
	DefaultMaxHistory = 50

	// serializedSnapshots is how many of the newest snapshots an export carries.
	serializedSnapshots = 10
)

// widgetMap is never mutated after it is published; every write builds a
// new map so snapshots can share it.
type widgetMap map[string]*Metadata

func (w widgetMap) with(id string, md *Metadata) widgetMap {
	out := make(widgetMap, len(w)+1)
	for k, v := range w {
		out[k] = v
	}
	out[id] = md
	return out
}

func (w widgetMap) without(ids ...string) widgetMap {
	out := make(widgetMap, len(w))
	for k, v := range w {
		out[k] = v
	}
	for _, id := range ids {
		delete(out, id)
	}
	return out
}

func (w widgetMap) values() map[string]Metadata {
	out := make(map[string]Metadata, len(w))
	for k, v := range w {
		out[k] = v.Clone()
	}
	return out
}

// Snapshot is a point-in-time copy of the stored widgets.
type Snapshot struct {
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	Data      map[string]Metadata `json:"data"`
	Operation string              `json:"operation"`
	ElementID string              `json:"elementId,omitempty"`
}

type snapshot struct {
	id        string
	timestamp time.Time
	data      widgetMap
	operation string
	elementID string
}

func (s snapshot) export() Snapshot {
	return Snapshot{
		ID:        s.id,
		Timestamp: s.timestamp,
		Data:      s.data.values(),
		Operation: s.operation,
		ElementID: s.elementID,
	}
}

// Storage keeps widget metadata keyed by element id, with a bounded log of
// snapshots for point-in-time restore. It is safe for concurrent use.
type Storage struct {
	mu         sync.RWMutex
	widgets    widgetMap
	history    []snapshot
	maxHistory int
	createdAt  time.Time
	now        func() time.Time
	logger     *logrus.Logger
}

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// WithMaxHistory sets the snapshot cap.
func WithMaxHistory(n int) StorageOption {
	return func(s *Storage) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// WithStorageLogger sets the logger.
func WithStorageLogger(l *logrus.Logger) StorageOption {
	return func(s *Storage) { s.logger = l }
}

// WithStorageClock sets the time source.
func WithStorageClock(now func() time.Time) StorageOption {
	return func(s *Storage) { s.now = now }
}

// NewStorage creates an empty store.
func NewStorage(opts ...StorageOption) *Storage {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	s := &Storage{
		widgets:    widgetMap{},
		maxHistory: DefaultMaxHistory,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createdAt = s.now()
	return s
}

// Set stores md under md.ElementID, replacing any existing record.
func (s *Storage) Set(md Metadata) error {
	if err := md.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := md.Clone()
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	if stored.Version < 1 {
		stored.Version = 1
	}
	s.widgets = s.widgets.with(stored.ElementID, &stored)
	return nil
}

// Get returns a copy of the widget for id.
func (s *Storage) Get(id string) (Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	md, ok := s.widgets[id]
	if !ok {
		return Metadata{}, false
	}
	return md.Clone(), true
}

// Has reports whether a widget is stored for id.
func (s *Storage) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.widgets[id]
	return ok
}

// Delete removes the widget for id and reports whether it existed.
func (s *Storage) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.widgets[id]; !ok {
		return false
	}
	s.widgets = s.widgets.without(id)
	return true
}

// Clear removes every widget. Snapshots are kept.
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.widgets = widgetMap{}
}

// Duplicate copies the widget at sourceID to targetID. The copy is
// independent of the source.
func (s *Storage) Duplicate(sourceID, targetID string) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.widgets[sourceID]
	if !ok {
		return Metadata{}, newError(CodeElementNotFound, "source widget not found", sourceID, "")
	}
	if _, exists := s.widgets[targetID]; exists {
		return Metadata{}, newError(CodeDuplicateID, "target widget already exists", targetID, src.Type)
	}
	if targetID == "" {
		return Metadata{}, newError(CodeInvalidMetadata, "target id is required", sourceID, src.Type)
	}

	now := s.now()
	dup := src.Clone()
	dup.ElementID = targetID
	dup.CreatedAt = now
	dup.UpdatedAt = now
	dup.Version = 1
	s.widgets = s.widgets.with(targetID, &dup)
	return dup.Clone(), nil
}

// Update applies p to the widget at id and bumps its version.
func (s *Storage) Update(id string, p Patch) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.widgets[id]
	if !ok {
		return Metadata{}, newError(CodeElementNotFound, "widget not found", id, "")
	}

	next := p.apply(*cur)
	if err := next.Validate(); err != nil {
		return Metadata{}, err
	}
	next.UpdatedAt = s.now()
	next.Version = cur.Version + 1
	s.widgets = s.widgets.with(id, &next)
	return next.Clone(), nil
}

// GetAll returns every widget ordered by element id.
func (s *Storage) GetAll() []Metadata {
	return s.filter(func(*Metadata) bool { return true })
}

// GetByType returns the widgets of type t ordered by element id.
func (s *Storage) GetByType(t Type) []Metadata {
	return s.filter(func(md *Metadata) bool { return md.Type == t })
}

func (s *Storage) filter(keep func(*Metadata) bool) []Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Metadata, 0, len(s.widgets))
	for _, md := range s.widgets {
		if keep(md) {
			out = append(out, md.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ElementID < out[j].ElementID })
	return out
}

// Count is the number of stored widgets.
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.widgets)
}

// SaveSnapshot records the current state and returns the snapshot id.
func (s *Storage) SaveSnapshot(operation, elementID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		id:        uuid.New().String(),
		timestamp: s.now(),
		data:      s.widgets,
		operation: operation,
		elementID: elementID,
	}
	s.history = append(s.history, snap)
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = append([]snapshot(nil), s.history[over:]...)
	}
	return snap.id
}

// RestoreSnapshot makes the state of snapshot id current again. The
// history itself is left untouched.
func (s *Storage) RestoreSnapshot(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range s.history {
		if snap.id == id {
			s.widgets = snap.data
			s.logger.WithFields(logrus.Fields{
				"snapshot_id": id,
				"operation":   snap.operation,
				"widgets":     len(snap.data),
			}).Info("Restored widget snapshot")
			return true
		}
	}
	return false
}

// History returns the snapshot log, oldest first.
func (s *Storage) History() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, len(s.history))
	for i, snap := range s.history {
		out[i] = snap.export()
	}
	return out
}

// Export is the serialized form of a Storage.
type Export struct {
	Version   string              `json:"version"`
	Widgets   map[string]Metadata `json:"widgets"`
	Snapshots []Snapshot          `json:"snapshots"`
	Metadata  ExportMetadata      `json:"metadata"`
}

// ExportMetadata describes an export.
type ExportMetadata struct {
	CreatedAt      time.Time `json:"createdAt"`
	TotalWidgets   int       `json:"totalWidgets"`
	SupportedTypes []Type    `json:"supportedTypes"`
}

// Serialize encodes the widgets and the newest snapshots as JSON.
func (s *Storage) Serialize() (string, error) {
	s.mu.RLock()
	exp := Export{
		Version: SerializationVersion,
		Widgets: s.widgets.values(),
		Metadata: ExportMetadata{
			CreatedAt:      s.createdAt,
			TotalWidgets:   len(s.widgets),
			SupportedTypes: SupportedTypes(),
		},
	}
	start := len(s.history) - serializedSnapshots
	if start < 0 {
		start = 0
	}
	exp.Snapshots = make([]Snapshot, 0, len(s.history)-start)
	for _, snap := range s.history[start:] {
		exp.Snapshots = append(exp.Snapshots, snap.export())
	}
	s.mu.RUnlock()

	data, err := json.Marshal(exp)
	if err != nil {
		return "", &Error{
			Code:    CodeSerializationError,
			Message: "failed to encode widget storage",
			Err:     errors.Wrap(err, "marshal export"),
		}
	}
	return string(data), nil
}

// Deserialize replaces the whole state with the export in data. On any
// error the current state is left as it was.
func (s *Storage) Deserialize(data string) error {
	var exp Export
	if err := json.Unmarshal([]byte(data), &exp); err != nil {
		return &Error{
			Code:    CodeSerializationError,
			Message: "failed to decode widget storage",
			Err:     errors.Wrap(err, "unmarshal export"),
		}
	}
	if exp.Version == "" {
		return newError(CodeSerializationError, "export has no version", "", "")
	}

	widgets, err := importWidgets(exp.Widgets)
	if err != nil {
		return &Error{
			Code:    CodeSerializationError,
			Message: "export contains invalid widgets",
			Err:     errors.Wrap(err, "import widgets"),
		}
	}

	history := make([]snapshot, 0, len(exp.Snapshots))
	for _, snap := range exp.Snapshots {
		snapData, err := importWidgets(snap.Data)
		if err != nil {
			return &Error{
				Code:    CodeSerializationError,
				Message: "export contains an invalid snapshot",
				Err:     errors.Wrapf(err, "import snapshot %s", snap.ID),
			}
		}
		history = append(history, snapshot{
			id:        snap.ID,
			timestamp: snap.Timestamp,
			data:      snapData,
			operation: snap.Operation,
			elementID: snap.ElementID,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.widgets = widgets
	s.history = history
	if !exp.Metadata.CreatedAt.IsZero() {
		s.createdAt = exp.Metadata.CreatedAt
	}
	return nil
}

func importWidgets(in map[string]Metadata) (widgetMap, error) {
	out := make(widgetMap, len(in))
	for id, md := range in {
		if md.ElementID != id {
			return nil, newError(CodeInvalidMetadata, "widget key does not match its element id", id, md.Type)
		}
		if err := md.Validate(); err != nil {
			return nil, err
		}
		stored := md.Clone()
		out[id] = &stored
	}
	return out, nil
}

// SyncReport lists what Sync changed.
type SyncReport struct {
	Created []string `json:"created"`
	Removed []string `json:"removed"`
}

// Sync brings the store in line with a detection run: widgets are created
// for newly detected elements and removed for elements that no longer
// exist on the canvas. Existing records are left as the user edited them.
func (s *Storage) Sync(detections []Detection, liveIDs []string) SyncReport {
	live := mapset.NewThreadUnsafeSet[string](liveIDs...)

	s.mu.Lock()
	defer s.mu.Unlock()

	report := SyncReport{Created: []string{}, Removed: []string{}}
	next := s.widgets

	for id := range s.widgets {
		if !live.Contains(id) {
			report.Removed = append(report.Removed, id)
		}
	}
	if len(report.Removed) > 0 {
		sort.Strings(report.Removed)
		next = next.without(report.Removed...)
	}

	for _, det := range detections {
		if !det.IsWidget || det.Metadata == nil || !live.Contains(det.ElementID) {
			continue
		}
		if _, exists := next[det.ElementID]; exists {
			continue
		}
		md := det.Metadata.Clone()
		if err := md.Validate(); err != nil {
			s.logger.WithError(err).WithField("element_id", det.ElementID).Warn("Skipping invalid detected widget")
			continue
		}
		next = next.with(det.ElementID, &md)
		report.Created = append(report.Created, det.ElementID)
	}

	s.widgets = next
	return report
}
