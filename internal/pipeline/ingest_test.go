package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/nws-observation-ingest/internal/domain"
	"github.com/couchcryptid/nws-observation-ingest/internal/observability"
	"github.com/couchcryptid/nws-observation-ingest/internal/pipeline"
	"github.com/couchcryptid/nws-observation-ingest/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockResolver struct {
	meta  domain.StationMetadata
	err   error
	calls int
}

func (m *mockResolver) ResolveStation(_ context.Context, _ string) (domain.StationMetadata, error) {
	m.calls++
	if m.err != nil {
		return domain.StationMetadata{}, m.err
	}
	return m.meta, nil
}

type mockFetcher struct {
	raw        []domain.RawObservation
	err        error
	start, end time.Time
	limit      int
}

func (m *mockFetcher) FetchObservations(_ context.Context, _ string, start, end time.Time, limit int) ([]domain.RawObservation, error) {
	m.start, m.end, m.limit = start, end, limit
	return m.raw, m.err
}

type mockStore struct {
	stations  map[string]domain.Station
	nextID    int64
	inserted  []domain.Observation
	insertErr error
	insertFn  func(obs []domain.Observation) int
}

func newMockStore() *mockStore {
	return &mockStore{stations: map[string]domain.Station{}, nextID: 1}
}

func (m *mockStore) StationByNWSID(_ context.Context, nwsID string) (domain.Station, error) {
	st, ok := m.stations[nwsID]
	if !ok {
		return domain.Station{}, store.ErrStationMissing
	}
	return st, nil
}

func (m *mockStore) CreateStation(_ context.Context, meta domain.StationMetadata) (domain.Station, error) {
	st := domain.Station{ID: m.nextID, NWSID: meta.NWSID, Name: meta.Name, Timezone: meta.Timezone, Latitude: meta.Latitude, Longitude: meta.Longitude}
	m.nextID++
	m.stations[meta.NWSID] = st
	return st, nil
}

func (m *mockStore) InsertObservations(_ context.Context, obs []domain.Observation) (int, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.inserted = append(m.inserted, obs...)
	if m.insertFn != nil {
		return m.insertFn(obs), nil
	}
	return len(obs), nil
}

// --- helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawObservation(t *testing.T, payload string) domain.RawObservation {
	t.Helper()
	var raw domain.RawObservation
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	return raw
}

func newPipeline(r *mockResolver, f *mockFetcher, s *mockStore) *pipeline.Pipeline {
	return pipeline.New(r, f, s, testLogger(), observability.NewMetricsForTesting(), 500)
}

// --- tests ---

func TestIngest_HappyPath(t *testing.T) {
	res := &mockResolver{meta: domain.StationMetadata{NWSID: "000SE", Name: "SCE South Hills Park"}}
	fet := &mockFetcher{raw: []domain.RawObservation{
		rawObservation(t, `{"properties": {"timestamp": "2025-01-01T00:00:00Z", "temperature": {"value": 15.666}, "relativeHumidity": {"value": 55.0}}}`),
		rawObservation(t, `{"properties": {"timestamp": "2025-01-01T01:00:00Z", "windSpeed": {"value": 12.959}}}`),
	}}
	st := newMockStore()

	inserted, err := newPipeline(res, fet, st).Ingest(context.Background(), "000SE", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 1, res.calls, "unseen station resolves upstream once")
	assert.Equal(t, 500, fet.limit)

	require.Len(t, st.inserted, 2)
	want := domain.Observation{
		StationID:   1,
		Timestamp:   "2025-01-01T00:00:00Z",
		Temperature: floatPtr(15.67),
		Humidity:    floatPtr(55.0),
	}
	if diff := cmp.Diff(want, st.inserted[0]); diff != "" {
		t.Fatalf("first inserted record mismatch (-want +got):\n%s", diff)
	}
}

func TestIngest_DefaultWindowSpansSevenDays(t *testing.T) {
	fixed := time.Date(2025, time.June, 15, 9, 30, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { domain.SetClock(nil) })

	res := &mockResolver{meta: domain.StationMetadata{NWSID: "000SE", Name: "Station"}}
	fet := &mockFetcher{}
	_, err := newPipeline(res, fet, newMockStore()).Ingest(context.Background(), "000SE", time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, fixed, fet.end)
	assert.Equal(t, fixed.Add(-7*24*time.Hour), fet.start)
}

func TestIngest_ExplicitWindowPassedThrough(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)

	res := &mockResolver{meta: domain.StationMetadata{NWSID: "000SE", Name: "Station"}}
	fet := &mockFetcher{}
	_, err := newPipeline(res, fet, newMockStore()).Ingest(context.Background(), "000SE", start, end)
	require.NoError(t, err)

	assert.Equal(t, start, fet.start)
	assert.Equal(t, end, fet.end)
}

func TestIngest_KnownStationSkipsResolution(t *testing.T) {
	res := &mockResolver{}
	fet := &mockFetcher{raw: []domain.RawObservation{
		rawObservation(t, `{"properties": {"timestamp": "2025-01-01T00:00:00Z"}}`),
	}}
	st := newMockStore()
	_, err := st.CreateStation(context.Background(), domain.StationMetadata{NWSID: "000SE", Name: "Known"})
	require.NoError(t, err)

	inserted, err := newPipeline(res, fet, st).Ingest(context.Background(), "000SE", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Zero(t, res.calls)
}

func TestIngest_UnknownStationCreatesNoState(t *testing.T) {
	res := &mockResolver{err: errors.New("station not found")}
	fet := &mockFetcher{raw: []domain.RawObservation{
		rawObservation(t, `{"properties": {"timestamp": "2025-01-01T00:00:00Z"}}`),
	}}
	st := newMockStore()

	inserted, err := newPipeline(res, fet, st).Ingest(context.Background(), "BOGUS", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.Empty(t, st.stations, "failed resolution must not create a station row")
	assert.Empty(t, st.inserted)
}

func TestIngest_EmptyFetchInsertsNothing(t *testing.T) {
	res := &mockResolver{meta: domain.StationMetadata{NWSID: "000SE", Name: "Station"}}
	fet := &mockFetcher{}
	st := newMockStore()

	inserted, err := newPipeline(res, fet, st).Ingest(context.Background(), "000SE", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.Empty(t, st.inserted, "no insert may be attempted for an empty result")
}

func TestIngest_FetchErrorTerminatesRun(t *testing.T) {
	res := &mockResolver{meta: domain.StationMetadata{NWSID: "000SE", Name: "Station"}}
	fet := &mockFetcher{err: errors.New("connection refused")}
	st := newMockStore()

	inserted, err := newPipeline(res, fet, st).Ingest(context.Background(), "000SE", time.Time{}, time.Time{})
	require.NoError(t, err, "upstream failure stays local to the run")
	assert.Zero(t, inserted)
	assert.Empty(t, st.inserted)
}

func TestIngest_DiscardsRecordsWithoutTimestamp(t *testing.T) {
	res := &mockResolver{meta: domain.StationMetadata{NWSID: "000SE", Name: "Station"}}
	fet := &mockFetcher{raw: []domain.RawObservation{
		rawObservation(t, `{"properties": {"timestamp": "2025-01-01T00:00:00Z", "temperature": {"value": 1.0}}}`),
		rawObservation(t, `{"properties": {"temperature": {"value": 2.0}}}`),
		rawObservation(t, `{"properties": {"timestamp": "", "temperature": {"value": 3.0}}}`),
	}}
	st := newMockStore()

	inserted, err := newPipeline(res, fet, st).Ingest(context.Background(), "000SE", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	require.Len(t, st.inserted, 1)
	assert.Equal(t, "2025-01-01T00:00:00Z", st.inserted[0].Timestamp)
}

func TestIngest_ReportsOnlyActuallyInsertedRows(t *testing.T) {
	res := &mockResolver{meta: domain.StationMetadata{NWSID: "000SE", Name: "Station"}}
	fet := &mockFetcher{raw: []domain.RawObservation{
		rawObservation(t, `{"properties": {"timestamp": "2025-01-01T00:00:00Z"}}`),
		rawObservation(t, `{"properties": {"timestamp": "2025-01-01T01:00:00Z"}}`),
		rawObservation(t, `{"properties": {"timestamp": "2025-01-01T02:00:00Z"}}`),
	}}
	st := newMockStore()
	st.insertFn = func(obs []domain.Observation) int { return 1 } // store skipped two duplicates

	inserted, err := newPipeline(res, fet, st).Ingest(context.Background(), "000SE", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}

func TestIngest_InsertErrorPropagates(t *testing.T) {
	res := &mockResolver{meta: domain.StationMetadata{NWSID: "000SE", Name: "Station"}}
	fet := &mockFetcher{raw: []domain.RawObservation{
		rawObservation(t, `{"properties": {"timestamp": "2025-01-01T00:00:00Z"}}`),
	}}
	st := newMockStore()
	st.insertErr = errors.New("CHECK constraint failed: humidity")

	inserted, err := newPipeline(res, fet, st).Ingest(context.Background(), "000SE", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Zero(t, inserted)
}

func floatPtr(v float64) *float64 { return &v }
