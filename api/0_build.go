package api

import (
	"net/http"

	"github.com/fulldump/box"
	"github.com/fulldump/box/boxopenapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fulldump/itempicker/api/apiitemsv1"
	"github.com/fulldump/itempicker/service"
	"github.com/fulldump/itempicker/statics"
)

func Build(s service.Servicer, staticsDir, version string, gatherer prometheus.Gatherer) *box.B {

	b := box.NewBox()

	mount(b.Resource("/v1"), s)

	// Paths used by the first web client
	legacy := mount(b.Resource("/api"), s)
	legacy.Resource("/test").
		WithActions(
			box.Get(health),
		)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	b.Resource("/metrics").
		WithActions(
			box.Get(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP),
		)

	b.Resource("/release").
		WithActions(box.Get(func() string {
			return version
		}))

	spec := boxopenapi.Spec(b)
	spec.Info.Title = "ItemPicker"
	spec.Info.Description = "Pick items from a large collection, changes are applied in batches."
	b.Resource("/openapi.json").
		WithActions(box.Get(func(r *http.Request) any {

			spec.Servers = []boxopenapi.Server{
				{
					Url: "https://" + r.Host,
				},
				{
					Url: "http://" + r.Host,
				},
			}

			return spec
		}))

	// Mount statics
	b.Resource("/*").
		WithActions(
			box.Get(statics.ServeStatics(staticsDir)).WithName("serveStatics"),
		)

	return b
}

func mount(r *box.R, s service.Servicer) *box.R {

	r.WithInterceptors(
		box.SetResponseHeader("Content-Type", "application/json"),
	)

	apiitemsv1.BuildV1Items(r, s)

	r.Resource("/stats").
		WithActions(
			box.Get(getStats(s)),
		)

	r.Resource("/deadletters").
		WithActions(
			box.Get(listDeadLetters(s)),
		)

	r.Resource("/health").
		WithActions(
			box.Get(health),
		)

	return r
}
