package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func TestMetricsServiceRecordsEngineOutcomes(t *testing.T) {
	m := NewMetricsService()

	m.ObserveDetection("write", time.Millisecond, []models.Conflict{{Kind: models.ConflictTeacher}, {Kind: models.ConflictRoom}, {Kind: models.ConflictTeacher}})
	m.RecordImport(&models.BatchResult{
		Mode:     models.ImportPartial,
		Accepted: make([]models.TimetableEntry, 3),
		Rejected: []models.RejectedCandidate{{Reason: models.RejectConflict}, {Reason: models.RejectValidation}},
		Skipped:  []int{7},
	})
	m.RecordWriteRejection("CONFLICT")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.conflictsFound.WithLabelValues("teacher")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflictsFound.WithLabelValues("room")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.importCandidates.WithLabelValues("partial", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.importCandidates.WithLabelValues("partial", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.importCandidates.WithLabelValues("partial", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writeRejections.WithLabelValues("CONFLICT")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "timetable_conflicts_detected_total"))
}

func TestMetricsServiceNilIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	m.ObserveDetection("report", time.Millisecond, nil)
	m.RecordImport(&models.BatchResult{})
	m.ObserveLockWait(time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCacheServiceHitMissAndDisabled(t *testing.T) {
	store := newMockCache()
	metrics := NewMetricsService()
	cache := NewCacheService(store, metrics, 0, zap.NewNop(), true)
	ctx := context.Background()

	var out string
	hit, err := cache.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(ctx, "k", "v", 0))
	hit, err = cache.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "v", out)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheMisses))

	require.NoError(t, cache.Delete(ctx, "k"))
	hit, _ = cache.Get(ctx, "k", &out)
	assert.False(t, hit)

	disabled := NewCacheService(store, nil, time.Minute, nil, false)
	assert.False(t, disabled.Enabled())
	require.NoError(t, disabled.Set(ctx, "k", "v", 0))
	assert.Equal(t, 1, store.sets)
}
