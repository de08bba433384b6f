package statics

import (
	"embed"
	"net/http"
	"net/url"
)

// Serve static files
//
//go:embed www/*
var www embed.FS

func ServeStatics(staticsDir string) http.HandlerFunc {
	if staticsDir == "" {
		return AddPrefix("/www", http.FileServer(http.FS(www)))
	}
	return http.FileServer(http.Dir(staticsDir)).ServeHTTP
}

// AddPrefix is the opposite of http.StripPrefix.
func AddPrefix(prefix string, h http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := new(http.Request)
		*r2 = *r
		r2.URL = new(url.URL)
		*r2.URL = *r.URL
		r2.URL.Path = prefix + r.URL.Path
		if r.URL.RawPath != "" {
			r2.URL.RawPath = prefix + r.URL.RawPath
		}
		h.ServeHTTP(w, r2)
	}
}
