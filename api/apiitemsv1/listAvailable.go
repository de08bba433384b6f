package apiitemsv1

import (
	"context"
	"encoding/json"
	"net/http"
)

func listAvailable(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	q, err := parseQuery(r)
	if err != nil {
		return err
	}

	page, err := GetServicer(ctx).ListAvailable(q)
	if err != nil {
		return err
	}

	return json.NewEncoder(w).Encode(page)
}
