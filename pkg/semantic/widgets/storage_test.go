package widgets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mapWidget(id string) Metadata {
	return Metadata{
		ElementID: id,
		Type:      TypeMap,
		Title:     "Office",
		Map: &MapConfig{
			Latitude:     DefaultMapLatitude,
			Longitude:    DefaultMapLongitude,
			Zoom:         DefaultMapZoom,
			Style:        DefaultMapStyle,
			CenterSource: CenterDefault,
		},
	}
}

func newTestStorage(t *testing.T, opts ...StorageOption) *Storage {
	t.Helper()
	return NewStorage(append([]StorageOption{WithStorageClock(fixedClock)}, opts...)...)
}

func TestStorage_SetGetDelete(t *testing.T) {
	s := newTestStorage(t)

	if err := s.Set(mapWidget("a")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !s.Has("a") || s.Count() != 1 {
		t.Fatal("expected widget a to be stored")
	}

	got, ok := s.Get("a")
	if !ok || got.Version != 1 || got.CreatedAt.IsZero() {
		t.Errorf("unexpected stored widget %+v", got)
	}

	got.Map.Zoom = 3
	again, _ := s.Get("a")
	if again.Map.Zoom != DefaultMapZoom {
		t.Error("mutating a returned widget must not change storage")
	}

	if !s.Delete("a") || s.Delete("a") {
		t.Error("expected delete to succeed once")
	}
}

func TestStorage_SetRejectsInvalid(t *testing.T) {
	s := newTestStorage(t)

	bad := mapWidget("a")
	bad.Video = &VideoConfig{}
	err := s.Set(bad)

	var werr *Error
	if !errors.As(err, &werr) || werr.Code != CodeInvalidMetadata || werr.ElementID != "a" {
		t.Fatalf("expected INVALID_METADATA for a, got %v", err)
	}

	unsupported := mapWidget("b")
	unsupported.Type = "gallery"
	if err := s.Set(unsupported); !errors.Is(err, &Error{Code: CodeUnsupportedType}) {
		t.Errorf("expected UNSUPPORTED_TYPE, got %v", err)
	}
}

func TestStorage_SnapshotRestoreRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	for _, id := range []string{"a", "b"} {
		if err := s.Set(mapWidget(id)); err != nil {
			t.Fatal(err)
		}
	}

	before := map[string]Metadata{}
	for _, id := range []string{"a", "b", "c"} {
		if md, ok := s.Get(id); ok {
			before[id] = md
		}
	}

	snapID := s.SaveSnapshot("before-edit", "")

	title := "Renamed"
	if _, err := s.Update("a", Patch{Title: &title}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	s.Delete("b")
	if err := s.Set(mapWidget("c")); err != nil {
		t.Fatal(err)
	}

	if !s.RestoreSnapshot(snapID) {
		t.Fatal("expected restore to succeed")
	}

	for _, id := range []string{"a", "b", "c"} {
		got, ok := s.Get(id)
		want, existed := before[id]
		if ok != existed {
			t.Errorf("%s: presence %v, want %v", id, ok, existed)
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s mismatch after restore (-want +got):\n%s", id, diff)
		}
	}

	if s.RestoreSnapshot("missing") {
		t.Error("restoring an unknown snapshot must fail")
	}
}

func TestStorage_DuplicateIsIndependent(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Set(mapWidget("a")); err != nil {
		t.Fatal(err)
	}
	original, _ := s.Get("a")

	if _, err := s.Duplicate("a", "b"); err != nil {
		t.Fatalf("Duplicate failed: %v", err)
	}

	title := "Copy"
	if _, err := s.Update("b", Patch{Title: &title, Map: &MapConfig{Latitude: 1, Longitude: 2, Zoom: 5, Style: "hybrid"}}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := s.Get("a")
	if diff := cmp.Diff(original, got); diff != "" {
		t.Errorf("source changed after mutating duplicate (-want +got):\n%s", diff)
	}

	b, _ := s.Get("b")
	if b.ElementID != "b" || b.Title != "Copy" || b.Version != 2 {
		t.Errorf("unexpected duplicate %+v", b)
	}
}

func TestStorage_DuplicateErrors(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Set(mapWidget("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(mapWidget("b")); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Duplicate("missing", "c"); !errors.Is(err, &Error{Code: CodeElementNotFound}) {
		t.Errorf("expected ELEMENT_NOT_FOUND, got %v", err)
	}
	if _, err := s.Duplicate("a", "b"); !errors.Is(err, &Error{Code: CodeDuplicateID}) {
		t.Errorf("expected DUPLICATE_ID, got %v", err)
	}
}

func TestStorage_UpdateRejectsWrongConfig(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Set(mapWidget("a")); err != nil {
		t.Fatal(err)
	}

	_, err := s.Update("a", Patch{Chart: &ChartConfig{ChartType: "pie"}})
	if !errors.Is(err, &Error{Code: CodeInvalidMetadata}) {
		t.Fatalf("expected INVALID_METADATA, got %v", err)
	}
	got, _ := s.Get("a")
	if got.Chart != nil || got.Version != 1 {
		t.Error("failed update must leave the widget unchanged")
	}

	if _, err := s.Update("zzz", Patch{}); !errors.Is(err, &Error{Code: CodeElementNotFound}) {
		t.Errorf("expected ELEMENT_NOT_FOUND, got %v", err)
	}
}

func TestStorage_HistoryIsCappedFIFO(t *testing.T) {
	s := newTestStorage(t, WithMaxHistory(3))

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, s.SaveSnapshot(fmt.Sprintf("op-%d", i), ""))
	}

	history := s.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(history))
	}
	for i, snap := range history {
		if snap.ID != ids[i+2] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i+2], snap.ID)
		}
	}
	if s.RestoreSnapshot(ids[0]) {
		t.Error("evicted snapshot must not be restorable")
	}
}

func TestStorage_SerializeRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Set(mapWidget("a")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 12; i++ {
		s.SaveSnapshot("tick", "a")
	}

	data, err := s.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if !strings.Contains(data, `"version":"1.0.0"`) || !strings.Contains(data, `"totalWidgets":1`) {
		t.Errorf("unexpected export %s", data)
	}

	restored := newTestStorage(t)
	if err := restored.Deserialize(data); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if diff := cmp.Diff(s.GetAll(), restored.GetAll()); diff != "" {
		t.Errorf("widgets differ after round trip (-want +got):\n%s", diff)
	}
	if n := len(restored.History()); n != 10 {
		t.Errorf("expected the last 10 snapshots, got %d", n)
	}
}

func TestStorage_DeserializeFailureKeepsState(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Set(mapWidget("a")); err != nil {
		t.Fatal(err)
	}

	inputs := []string{
		`not json`,
		`{"widgets": {}}`,
		`{"version": "1.0.0", "widgets": {"x": {"elementId": "y", "type": "map", "map": {}}}}`,
		`{"version": "1.0.0", "widgets": {"x": {"elementId": "x", "type": "map"}}}`,
	}
	for _, in := range inputs {
		err := s.Deserialize(in)
		if !errors.Is(err, &Error{Code: CodeSerializationError}) {
			t.Errorf("expected SERIALIZATION_ERROR for %s, got %v", in, err)
		}
	}
	if !s.Has("a") || s.Count() != 1 {
		t.Error("failed deserialize must not change state")
	}
}

func TestStorage_Sync(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Set(mapWidget("gone")); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(mapWidget("kept")); err != nil {
		t.Fatal(err)
	}
	title := "Edited"
	if _, err := s.Update("kept", Patch{Title: &title}); err != nil {
		t.Fatal(err)
	}

	d := NewDetector()
	dets := d.DetectAll([]Source{
		{ElementID: "kept", Text: "[MAP: Paris]"},
		{ElementID: "new", Text: "[CHART: kpis]"},
		{ElementID: "plain", Text: "hello"},
	})

	report := s.Sync(dets, []string{"kept", "new", "plain"})
	if diff := cmp.Diff(SyncReport{Created: []string{"new"}, Removed: []string{"gone"}}, report); diff != "" {
		t.Errorf("unexpected report (-want +got):\n%s", diff)
	}

	kept, _ := s.Get("kept")
	if kept.Title != "Edited" {
		t.Error("sync must not overwrite existing widgets")
	}
	if got := s.GetByType(TypeChart); len(got) != 1 || got[0].ElementID != "new" {
		t.Errorf("expected new chart widget, got %+v", got)
	}
}

type fakeGeocoder struct {
	calls []string
	err   error
}

func (f *fakeGeocoder) Geocode(_ context.Context, q string) (float64, float64, error) {
	f.calls = append(f.calls, q)
	if f.err != nil {
		return 0, 0, f.err
	}
	return 51.5074, -0.1278, nil
}

func TestResolveMapCenters(t *testing.T) {
	d := NewDetector()
	dets := d.DetectAll([]Source{
		{ElementID: "a", Text: "[MAP: London]"},
		{ElementID: "b", Text: "[MAP: 1.5, 2.5]"},
		{ElementID: "c", Text: "[CHART]"},
	})

	geo := &fakeGeocoder{}
	out := ResolveMapCenters(context.Background(), geo, dets, nil)

	if diff := cmp.Diff([]string{"London"}, geo.calls); diff != "" {
		t.Errorf("unexpected geocoder calls (-want +got):\n%s", diff)
	}
	if cfg := out[0].Metadata.Map; cfg.Latitude != 51.5074 || cfg.CenterSource != CenterGeocoded {
		t.Errorf("expected geocoded center, got %+v", cfg)
	}
	if dets[0].Metadata.Map.CenterSource != CenterDefault {
		t.Error("input detections must not be modified")
	}

	failing := &fakeGeocoder{err: errors.New("quota")}
	out = ResolveMapCenters(context.Background(), failing, dets, nil)
	if out[0].Metadata.Map.CenterSource != CenterDefault {
		t.Error("failed lookup must keep the default center")
	}
}
