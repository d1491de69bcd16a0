package httpserver

import "github.com/dicomkit/dicomweb-server/internal/apierror"

func notFoundRoute() *apierror.Error {
	return apierror.New(apierror.KindNotFound, "no route matches this method and path")
}

func missingQueryParam(name string) *apierror.Error {
	return apierror.New(apierror.KindBadRequest, "missing required parameter: "+name)
}

func serverOverloaded() *apierror.Error {
	return apierror.New(apierror.KindUnavailable, "server is handling its configured maximum number of concurrent requests")
}
