package httpserver

import (
	"net/http"

	"github.com/dicomkit/dicomweb-server/internal/config"
	"github.com/dicomkit/dicomweb-server/internal/httpcache"
	"github.com/dicomkit/dicomweb-server/internal/qido"
	"github.com/dicomkit/dicomweb-server/internal/router"
	"github.com/dicomkit/dicomweb-server/internal/stow"
	"github.com/dicomkit/dicomweb-server/internal/ups"
	"github.com/dicomkit/dicomweb-server/internal/wado"
)

// Deps wires the collaborators a fully configured front needs. Cache
// may be nil (caching disabled) and UPS may have a nil Store (spec.md
// §4.6 "UPS storage is not configured" — every UPS operation then
// reports 501).
type Deps struct {
	QIDO   *qido.Handler
	WADO   *wado.Handler
	STOW   *stow.Handler
	UPS    *ups.Handler
	Cache  *httpcache.Middleware
	Config config.DICOMwebConfig
}

// frontend dispatches one matched route to its handler method.
type frontend struct {
	deps   Deps
	router *router.Router
}

// NewHandler builds the complete DICOMweb HTTP front: route dispatch
// wrapped by response caching and its invalidation hook, in that order
// spec.md §4.9 implies (invalidation observes the request before the
// mutating handler runs; caching observes GETs around the dispatch), all
// bounded by an admission-control semaphore sized to MaxConcurrentRequests.
func NewHandler(deps Deps) http.Handler {
	front := &frontend{deps: deps, router: router.New(deps.Config.PathPrefix)}

	var h http.Handler = front
	if deps.Cache != nil {
		h = deps.Cache.Wrap(h)
		h = deps.Cache.InvalidatingMiddleware(h)
	}
	return admissionControl(deps.Config.MaxConcurrentRequests, h)
}

func (f *frontend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handlerType, params, ok := f.router.Match(r.Method, r.URL.Path)
	if !ok {
		writeAPIError(w, notFoundRoute())
		return
	}

	switch handlerType {
	case router.SearchStudies:
		f.searchStudies(w, r)
	case router.SearchSeriesInStudy:
		f.searchSeries(w, r, params["studyUID"])
	case router.SearchInstancesInSeries:
		f.searchInstances(w, r, params["studyUID"], params["seriesUID"])

	case router.RetrieveStudy:
		f.retrieveStudy(w, r, params["studyUID"])
	case router.RetrieveStudyMetadata:
		f.retrieveStudyMetadata(w, r, params["studyUID"])
	case router.RetrieveSeries:
		f.retrieveSeries(w, r, params["studyUID"], params["seriesUID"])
	case router.RetrieveSeriesMetadata:
		f.retrieveSeriesMetadata(w, r, params["studyUID"], params["seriesUID"])
	case router.RetrieveInstance:
		f.retrieveInstance(w, r, params["studyUID"], params["seriesUID"], params["instanceUID"])
	case router.RetrieveInstanceMetadata:
		f.retrieveInstanceMetadata(w, r, params["studyUID"], params["seriesUID"], params["instanceUID"])
	case router.RetrieveFrames:
		f.retrieveFrames(w, r, params["studyUID"], params["seriesUID"], params["instanceUID"], params["frames"])

	case router.DeleteStudy:
		f.deleteStudy(w, r, params["studyUID"])
	case router.DeleteSeries:
		f.deleteSeries(w, r, params["studyUID"], params["seriesUID"])
	case router.DeleteInstance:
		f.deleteInstance(w, r, params["studyUID"], params["seriesUID"], params["instanceUID"])

	case router.StoreInstances:
		f.storeInstances(w, r, "")
	case router.StoreInstancesToStudy:
		f.storeInstances(w, r, params["studyUID"])

	case router.SearchWorkitems:
		f.searchWorkitems(w, r)
	case router.CreateWorkitem:
		f.createWorkitem(w, r, "")
	case router.CreateWorkitemWithUID:
		f.createWorkitem(w, r, params["workitemUID"])
	case router.RetrieveWorkitem:
		f.retrieveWorkitem(w, r, params["workitemUID"])
	case router.UpdateWorkitem:
		f.updateWorkitem(w, r, params["workitemUID"])
	case router.ChangeWorkitemState:
		f.changeWorkitemState(w, r, params["workitemUID"])
	case router.RequestWorkitemCancellation:
		f.requestCancellation(w, r, params["workitemUID"])
	case router.SubscribeWorkitem:
		f.subscribeWorkitem(w, r, params["workitemUID"], params["aeTitle"])
	case router.UnsubscribeWorkitem:
		f.unsubscribeWorkitem(w, r, params["workitemUID"], params["aeTitle"])
	case router.SuspendSubscription:
		f.suspendSubscription(w, r, params["workitemUID"], params["aeTitle"])

	default:
		writeAPIError(w, notFoundRoute())
	}
}
