package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicomkit/dicomweb-server/internal/cache"
	"github.com/dicomkit/dicomweb-server/internal/config"
	"github.com/dicomkit/dicomweb-server/internal/dicomjson"
	"github.com/dicomkit/dicomweb-server/internal/event"
	"github.com/dicomkit/dicomweb-server/internal/httpcache"
	"github.com/dicomkit/dicomweb-server/internal/httpserver"
	"github.com/dicomkit/dicomweb-server/internal/negotiate"
	"github.com/dicomkit/dicomweb-server/internal/qido"
	"github.com/dicomkit/dicomweb-server/internal/storage"
	"github.com/dicomkit/dicomweb-server/internal/stow"
	"github.com/dicomkit/dicomweb-server/internal/subscription"
	"github.com/dicomkit/dicomweb-server/internal/ups"
	"github.com/dicomkit/dicomweb-server/internal/wado"
)

const testBaseURL = "http://localhost:8042/dicom-web"

// deliveredEvent is one call the recordingDelivery service observed.
type deliveredEvent struct {
	Event      event.Event
	Subscriber event.Subscriber
}

// recordingDelivery is a test-only event.DeliveryService that hands
// every delivery to a channel instead of logging it, so a test can
// assert on fan-out without racing the dispatcher goroutine.
type recordingDelivery struct {
	ch chan deliveredEvent
}

func newRecordingDelivery() *recordingDelivery {
	return &recordingDelivery{ch: make(chan deliveredEvent, 16)}
}

func (r *recordingDelivery) DeliverEvent(evt event.Event, sub event.Subscriber) error {
	r.ch <- deliveredEvent{Event: evt, Subscriber: sub}
	return nil
}

// testServer wires a complete httpserver.NewHandler the way
// cmd/server/main.go does, against an in-memory store and a recording
// delivery service in place of event.LogDeliveryService.
type testServer struct {
	Handler    http.Handler
	Store      storage.Provider
	Subs       *subscription.Manager
	Deliveries *recordingDelivery
}

func newTestServer(t *testing.T, stowCfg config.STOWConfig, cacheEnabled bool) *testServer {
	t.Helper()
	return newTestServerWithBodyLimit(t, stowCfg, cacheEnabled, 10<<20)
}

func newTestServerWithBodyLimit(t *testing.T, stowCfg config.STOWConfig, cacheEnabled bool, maxBodySize int64) *testServer {
	t.Helper()

	store := storage.NewMemoryStore()
	subs := subscription.NewManager()
	queue := event.NewQueue(100)
	delivery := newRecordingDelivery()
	dispatcher := event.NewDispatcher(queue, delivery)
	dispatcher.Start()
	t.Cleanup(dispatcher.Stop)

	upsStore := ups.NewStore(subs, queue)

	cacheCfg := config.CacheConfig{Enabled: cacheEnabled, DefaultTTL: time.Minute, MaxEntries: 100}
	var cacheMW *httpcache.Middleware
	if cacheEnabled {
		cacheMW = httpcache.New(cache.NewMemoryCache(), cacheCfg)
	}

	handler := httpserver.NewHandler(httpserver.Deps{
		QIDO:  qido.NewHandler(store, testBaseURL),
		WADO:  wado.NewHandler(store, testBaseURL),
		STOW:  stow.NewHandler(store, stowCfg, testBaseURL),
		UPS:   ups.NewHandler(upsStore, subs, testBaseURL),
		Cache: cacheMW,
		Config: config.DICOMwebConfig{
			MaxRequestBodySize:    maxBodySize,
			MaxConcurrentRequests: 50,
			STOW:                  stowCfg,
			Cache:                 cacheCfg,
		},
	})

	return &testServer{Handler: handler, Store: store, Subs: subs, Deliveries: delivery}
}

func decodeDatasetBody(t *testing.T, body []byte) dicomjson.Dataset {
	t.Helper()
	var ds dicomjson.Dataset
	require.NoError(t, json.Unmarshal(body, &ds))
	return ds
}

// Scenario 1 (spec.md §8): a GET that populates the cache reports
// X-Cache: MISS with an ETag; a repeat GET reports HIT with the same
// ETag; presenting that ETag as If-None-Match yields 304.
func TestCacheMissThenHitThen304(t *testing.T) {
	ts := newTestServer(t, config.STOWDefault(), true)

	require.NoError(t, ts.Store.StoreInstance(context.Background(), storage.InstanceRecord{
		StudyInstanceUID:  "1.2.3",
		SeriesInstanceUID: "1.2.3.4",
		SOPInstanceUID:    "1.2.3.4.5",
		SOPClassUID:       "1.2.840.10008.5.1.4.1.1.7",
		Data:              []byte("pixel-data"),
		Attributes:        dicomjson.Dataset{},
	}))

	rec1 := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec1, httptest.NewRequest(http.MethodGet, "/studies", nil))
	require.Equal(t, http.StatusOK, rec1.Code)
	assert.Equal(t, "MISS", rec1.Header().Get("X-Cache"))
	assert.Equal(t, "1", rec1.Header().Get("X-Total-Count"))
	etag := rec1.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec2 := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/studies", nil))
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "HIT", rec2.Header().Get("X-Cache"))
	assert.Equal(t, etag, rec2.Header().Get("ETag"))

	req3 := httptest.NewRequest(http.MethodGet, "/studies", nil)
	req3.Header.Set("If-None-Match", etag)
	rec3 := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec3, req3)
	assert.Equal(t, http.StatusNotModified, rec3.Code)
}

// Scenario 2 (spec.md §8): storing the same instance twice under a
// reject duplicate policy succeeds the first time and fails the
// second, yielding 409 with a FailedSOPSequence entry.
func TestStoreInstancesRejectsDuplicate(t *testing.T) {
	ts := newTestServer(t, config.STOWStrict(), false)

	body := buildPart10("1.2.840.10008.5.1", "1.2.840.10008.5.2", "1.2.840.10008.5.3", "1.2.840.10008.5.1.4.1.1.7")

	req1 := httptest.NewRequest(http.MethodPost, "/studies", bytes.NewReader(body))
	req1.Header.Set("Content-Type", "application/dicom")
	rec1 := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	resp1 := decodeDatasetBody(t, rec1.Body.Bytes())
	_, hasReferenced := resp1["00081199"]
	assert.True(t, hasReferenced)

	req2 := httptest.NewRequest(http.MethodPost, "/studies", bytes.NewReader(body))
	req2.Header.Set("Content-Type", "application/dicom")
	rec2 := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusConflict, rec2.Code)

	resp2 := decodeDatasetBody(t, rec2.Body.Bytes())
	failed, hasFailed := resp2["00081198"]
	require.True(t, hasFailed)
	assert.NotEmpty(t, failed.Value)
}

// Scenario 2b: a body over MaxRequestBodySize is rejected with 413
// before STOW ever sees it.
func TestStoreInstancesRejectsOversizedBody(t *testing.T) {
	ts := newTestServerWithBodyLimit(t, config.STOWDefault(), false, 8)

	body := buildPart10("1.2.3", "1.2.3.4", "1.2.3.4.5", "1.2.840.10008.5.1.4.1.1.7")
	req := httptest.NewRequest(http.MethodPost, "/studies", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/dicom")
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// Scenario 3 (spec.md §8): a workitem's SCHEDULED -> IN PROGRESS ->
// COMPLETED lifecycle. Entering IN PROGRESS returns 200 with tag
// 00081195 carrying the assigned transaction UID; a mismatched
// transaction UID is rejected with 409; a further mutation after
// COMPLETED is rejected with 409 (no transition out of a terminal state).
func TestWorkitemStateLifecycle(t *testing.T) {
	ts := newTestServer(t, config.STOWDefault(), false)
	const workitemUID = "1.2.276.0.7230010.3.1.2"

	recCreate := httptest.NewRecorder()
	ts.Handler.ServeHTTP(recCreate, httptest.NewRequest(http.MethodPost, "/workitems/"+workitemUID, nil))
	require.Equal(t, http.StatusCreated, recCreate.Code)

	toInProgress := `{"00741000":{"vr":"CS","Value":["IN PROGRESS"]}}`
	recStart := httptest.NewRecorder()
	ts.Handler.ServeHTTP(recStart, httptest.NewRequest(http.MethodPut, "/workitems/"+workitemUID+"/state", bytes.NewReader([]byte(toInProgress))))
	require.Equal(t, http.StatusOK, recStart.Code)

	started := decodeDatasetBody(t, recStart.Body.Bytes())
	txnUID, ok := started.GetString("00081195")
	require.True(t, ok)
	require.NotEmpty(t, txnUID)
	state, _ := started.GetString("00741000")
	assert.Equal(t, "IN PROGRESS", state)
	assert.Equal(t, txnUID, recStart.Header().Get("X-Transaction-UID"))

	toCompleted := `{"00741000":{"vr":"CS","Value":["COMPLETED"]}}`

	recBadTxn := httptest.NewRecorder()
	ts.Handler.ServeHTTP(recBadTxn, httptest.NewRequest(http.MethodPut, "/workitems/"+workitemUID+"/state?transaction-uid=not-the-right-uid", bytes.NewReader([]byte(toCompleted))))
	assert.Equal(t, http.StatusConflict, recBadTxn.Code)

	recComplete := httptest.NewRecorder()
	ts.Handler.ServeHTTP(recComplete, httptest.NewRequest(http.MethodPut, "/workitems/"+workitemUID+"/state?transaction-uid="+txnUID, bytes.NewReader([]byte(toCompleted))))
	require.Equal(t, http.StatusOK, recComplete.Code)

	completed := decodeDatasetBody(t, recComplete.Body.Bytes())
	state, _ = completed.GetString("00741000")
	assert.Equal(t, "COMPLETED", state)
	_, hasTxn := completed.GetString("00081195")
	assert.False(t, hasTxn, "a completed workitem carries no transaction UID")

	recAfterTerminal := httptest.NewRecorder()
	ts.Handler.ServeHTTP(recAfterTerminal, httptest.NewRequest(http.MethodPut, "/workitems/"+workitemUID+"/state", bytes.NewReader([]byte(toInProgress))))
	assert.Equal(t, http.StatusConflict, recAfterTerminal.Code)
}

// Scenario 4 (spec.md §8): subscribing an AE title to a workitem, then
// driving a state change, delivers exactly one envelope to that AE
// within 500ms.
func TestSubscriptionFanOutDeliversStateReport(t *testing.T) {
	ts := newTestServer(t, config.STOWDefault(), false)
	const workitemUID = "1.2.276.0.7230010.3.1.3"
	const aeTitle = "WORKSTATION1"

	recCreate := httptest.NewRecorder()
	ts.Handler.ServeHTTP(recCreate, httptest.NewRequest(http.MethodPost, "/workitems/"+workitemUID, nil))
	require.Equal(t, http.StatusCreated, recCreate.Code)

	recSub := httptest.NewRecorder()
	ts.Handler.ServeHTTP(recSub, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/workitems/%s/subscribers/%s", workitemUID, aeTitle), nil))
	require.Equal(t, http.StatusNoContent, recSub.Code)

	toInProgress := `{"00741000":{"vr":"CS","Value":["IN PROGRESS"]}}`
	recState := httptest.NewRecorder()
	ts.Handler.ServeHTTP(recState, httptest.NewRequest(http.MethodPut, "/workitems/"+workitemUID+"/state", bytes.NewReader([]byte(toInProgress))))
	require.Equal(t, http.StatusOK, recState.Code)

	select {
	case delivered := <-ts.Deliveries.ch:
		assert.Equal(t, event.TypeStateReport, delivered.Event.Type)
		assert.Equal(t, workitemUID, delivered.Event.WorkitemUID)
		assert.Equal(t, aeTitle, delivered.Subscriber.AETitle)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected a delivered envelope within 500ms")
	}

	select {
	case extra := <-ts.Deliveries.ch:
		t.Fatalf("expected exactly one delivery, got an extra: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

// Scenario 5 (spec.md §8): a Range request against a stored instance
// returns 206 with the requested slice and a matching Content-Range.
func TestRetrieveInstanceHonorsRange(t *testing.T) {
	ts := newTestServer(t, config.STOWDefault(), false)

	require.NoError(t, ts.Store.StoreInstance(context.Background(), storage.InstanceRecord{
		StudyInstanceUID:  "1.2.3",
		SeriesInstanceUID: "1.2.3.4",
		SOPInstanceUID:    "1.2.3.4.5",
		SOPClassUID:       "1.2.840.10008.5.1.4.1.1.7",
		Data:              []byte("0123456789"),
		Attributes:        dicomjson.Dataset{},
	}))

	req := httptest.NewRequest(http.MethodGet, "/studies/1.2.3/series/1.2.3.4/instances/1.2.3.4.5", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 2-5/10", rec.Header().Get("Content-Range"))
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
	assert.Equal(t, "2345", rec.Body.String())
}

// Scenario 5b: a range starting beyond the object length is rejected
// with 416 and a "bytes */total" Content-Range.
func TestRetrieveInstanceRangeNotSatisfiable(t *testing.T) {
	ts := newTestServer(t, config.STOWDefault(), false)

	require.NoError(t, ts.Store.StoreInstance(context.Background(), storage.InstanceRecord{
		StudyInstanceUID:  "1.2.3",
		SeriesInstanceUID: "1.2.3.4",
		SOPInstanceUID:    "1.2.3.4.5",
		SOPClassUID:       "1.2.840.10008.5.1.4.1.1.7",
		Data:              []byte("0123456789"),
		Attributes:        dicomjson.Dataset{},
	}))

	req := httptest.NewRequest(http.MethodGet, "/studies/1.2.3/series/1.2.3.4/instances/1.2.3.4.5", nil)
	req.Header.Set("Range", "bytes=100-200")
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */10", rec.Header().Get("Content-Range"))
}

// Scenario 6 (spec.md §8): Accept-Charset negotiation picks the
// highest-weighted charset among those the server offers. No
// httpserver response path performs this negotiation today (no
// handler calls negotiate.NegotiateCharset), so there is nothing to
// drive end-to-end here; the negotiation rule itself is exercised by
// internal/negotiate's own tests. This just pins that the parser the
// rest of the package would feed agrees with those tests' literal
// input from the same seed scenario.
func TestAcceptCharsetNegotiationMatchesSeedScenario(t *testing.T) {
	accept := negotiate.ParseCharsets("iso-8859-5, unicode-1-1;q=0.8, utf-8;q=1.0")
	got := negotiate.NegotiateCharset(accept, []string{"iso-8859-5", "utf-8"})
	assert.Equal(t, "utf-8", got)
}
