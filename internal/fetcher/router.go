// Package fetcher routes requests between the plain HTTP and headless browser fetchers.
package fetcher

import (
	"context"
	"fmt"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

// Router dispatches FetchRequests with Headless set to the browser fetcher.
type Router struct {
	http     crawler.Fetcher
	headless crawler.Fetcher
}

// NewRouter builds a Router. headless may be nil when browser rendering is disabled.
func NewRouter(http, headless crawler.Fetcher) *Router {
	return &Router{http: http, headless: headless}
}

// Fetch implements crawler.Fetcher.
func (r *Router) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if request.Headless {
		if r.headless == nil {
			return crawler.FetchResponse{}, fmt.Errorf("headless fetch requested for %s but no headless fetcher is configured", request.URL)
		}
		return r.headless.Fetch(ctx, request)
	}
	if r.http == nil {
		return crawler.FetchResponse{}, fmt.Errorf("http fetcher is not configured")
	}
	return r.http.Fetch(ctx, request)
}
