// Package router matches DICOMweb resource paths against the fixed
// route table in spec.md §4.1: (method, path) -> (HandlerType, captured
// named parameters). Matching is deterministic — the first declared
// route matching the method and segment shape wins.
package router

import (
	"net/http"
	"strings"
)

// HandlerType names the operation a matched route dispatches to.
type HandlerType string

const (
	SearchStudies               HandlerType = "searchStudies"
	RetrieveStudy               HandlerType = "retrieveStudy"
	RetrieveStudyMetadata       HandlerType = "retrieveStudyMetadata"
	SearchSeriesInStudy         HandlerType = "searchSeriesInStudy"
	RetrieveSeries              HandlerType = "retrieveSeries"
	RetrieveSeriesMetadata      HandlerType = "retrieveSeriesMetadata"
	SearchInstancesInSeries     HandlerType = "searchInstancesInSeries"
	RetrieveInstance            HandlerType = "retrieveInstance"
	RetrieveInstanceMetadata    HandlerType = "retrieveInstanceMetadata"
	RetrieveFrames              HandlerType = "retrieveFrames"
	DeleteStudy                 HandlerType = "deleteStudy"
	DeleteSeries                HandlerType = "deleteSeries"
	DeleteInstance              HandlerType = "deleteInstance"
	StoreInstances              HandlerType = "storeInstances"
	StoreInstancesToStudy       HandlerType = "storeInstancesToStudy"
	SearchWorkitems             HandlerType = "searchWorkitems"
	CreateWorkitem              HandlerType = "createWorkitem"
	RetrieveWorkitem            HandlerType = "retrieveWorkitem"
	CreateWorkitemWithUID       HandlerType = "createWorkitemWithUID"
	UpdateWorkitem              HandlerType = "updateWorkitem"
	ChangeWorkitemState         HandlerType = "changeWorkitemState"
	RequestWorkitemCancellation HandlerType = "requestWorkitemCancellation"
	SubscribeWorkitem           HandlerType = "subscribeWorkitem"
	UnsubscribeWorkitem         HandlerType = "unsubscribeWorkitem"
	SuspendSubscription         HandlerType = "suspendSubscription"
)

// segment is one path template segment: either a literal or a named capture ({name}).
type segment struct {
	literal string
	param   string // non-empty iff this is a {param} segment
}

// Route is one entry in the fixed route table.
type Route struct {
	Method      string
	Template    string
	HandlerType HandlerType
	segments    []segment
}

// Router holds the route table and the configured path prefix to strip
// before matching (spec.md §4.1: "prefix-stripping... if path does not
// begin with the configured prefix, no match").
type Router struct {
	prefix string
	routes []Route
}

// New builds the router with the exhaustive table from spec.md §4.1.
func New(prefix string) *Router {
	table := []Route{
		{Method: http.MethodGet, Template: "/studies", HandlerType: SearchStudies},
		{Method: http.MethodGet, Template: "/studies/{studyUID}", HandlerType: RetrieveStudy},
		{Method: http.MethodGet, Template: "/studies/{studyUID}/metadata", HandlerType: RetrieveStudyMetadata},
		{Method: http.MethodGet, Template: "/studies/{studyUID}/series", HandlerType: SearchSeriesInStudy},
		{Method: http.MethodGet, Template: "/studies/{studyUID}/series/{seriesUID}", HandlerType: RetrieveSeries},
		{Method: http.MethodGet, Template: "/studies/{studyUID}/series/{seriesUID}/metadata", HandlerType: RetrieveSeriesMetadata},
		{Method: http.MethodGet, Template: "/studies/{studyUID}/series/{seriesUID}/instances", HandlerType: SearchInstancesInSeries},
		{Method: http.MethodGet, Template: "/studies/{studyUID}/series/{seriesUID}/instances/{instanceUID}", HandlerType: RetrieveInstance},
		{Method: http.MethodGet, Template: "/studies/{studyUID}/series/{seriesUID}/instances/{instanceUID}/metadata", HandlerType: RetrieveInstanceMetadata},
		{Method: http.MethodGet, Template: "/studies/{studyUID}/series/{seriesUID}/instances/{instanceUID}/frames/{frames}", HandlerType: RetrieveFrames},
		{Method: http.MethodDelete, Template: "/studies/{studyUID}", HandlerType: DeleteStudy},
		{Method: http.MethodDelete, Template: "/studies/{studyUID}/series/{seriesUID}", HandlerType: DeleteSeries},
		{Method: http.MethodDelete, Template: "/studies/{studyUID}/series/{seriesUID}/instances/{instanceUID}", HandlerType: DeleteInstance},
		{Method: http.MethodPost, Template: "/studies", HandlerType: StoreInstances},
		{Method: http.MethodPost, Template: "/studies/{studyUID}", HandlerType: StoreInstancesToStudy},
		{Method: http.MethodGet, Template: "/workitems", HandlerType: SearchWorkitems},
		{Method: http.MethodPost, Template: "/workitems", HandlerType: CreateWorkitem},
		{Method: http.MethodGet, Template: "/workitems/{workitemUID}", HandlerType: RetrieveWorkitem},
		{Method: http.MethodPost, Template: "/workitems/{workitemUID}", HandlerType: CreateWorkitemWithUID},
		{Method: http.MethodPut, Template: "/workitems/{workitemUID}", HandlerType: UpdateWorkitem},
		{Method: http.MethodPut, Template: "/workitems/{workitemUID}/state", HandlerType: ChangeWorkitemState},
		{Method: http.MethodPut, Template: "/workitems/{workitemUID}/cancelrequest", HandlerType: RequestWorkitemCancellation},
		{Method: http.MethodPost, Template: "/workitems/{workitemUID}/subscribers/{aeTitle}", HandlerType: SubscribeWorkitem},
		{Method: http.MethodDelete, Template: "/workitems/{workitemUID}/subscribers/{aeTitle}", HandlerType: UnsubscribeWorkitem},
		{Method: http.MethodPost, Template: "/workitems/{workitemUID}/subscribers/{aeTitle}/suspend", HandlerType: SuspendSubscription},
	}

	for i := range table {
		table[i].segments = compile(table[i].Template)
	}

	return &Router{prefix: strings.TrimSuffix(prefix, "/"), routes: table}
}

func compile(template string) []segment {
	parts := strings.Split(strings.Trim(template, "/"), "/")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			segs = append(segs, segment{param: p[1 : len(p)-1]})
		} else {
			segs = append(segs, segment{literal: p})
		}
	}
	return segs
}

// Match returns the handler type and captured parameters for (method, path),
// or ok=false if no declared route matches.
func (rt *Router) Match(method, path string) (handlerType HandlerType, params map[string]string, ok bool) {
	rest, stripped := stripPrefix(path, rt.prefix)
	if !stripped {
		return "", nil, false
	}

	requestSegs := strings.Split(strings.Trim(rest, "/"), "/")
	if len(requestSegs) == 1 && requestSegs[0] == "" {
		requestSegs = requestSegs[:0]
	}

	for _, route := range rt.routes {
		if route.Method != method {
			continue
		}
		captured, matched := matchSegments(route.segments, requestSegs)
		if matched {
			return route.HandlerType, captured, true
		}
	}
	return "", nil, false
}

func stripPrefix(path, prefix string) (string, bool) {
	if prefix == "" {
		return path, true
	}
	if path == prefix {
		return "", true
	}
	if strings.HasPrefix(path, prefix+"/") {
		return strings.TrimPrefix(path, prefix), true
	}
	return "", false
}

func matchSegments(routeSegs []segment, requestSegs []string) (map[string]string, bool) {
	if len(routeSegs) != len(requestSegs) {
		return nil, false
	}
	params := make(map[string]string, len(routeSegs))
	for i, seg := range routeSegs {
		if seg.param != "" {
			params[seg.param] = requestSegs[i]
			continue
		}
		if seg.literal != requestSegs[i] {
			return nil, false
		}
	}
	return params, true
}

// Routes exposes the compiled table, used by documentation/introspection
// and by tests asserting §8 property 6 over every declared route.
func (rt *Router) Routes() []Route {
	return rt.routes
}
