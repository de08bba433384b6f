package apiitemsv1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-json-experiment/json/jsontext"
)

type itemRequest struct {
	ID jsontext.Value `json:"id"`
}

func selectItem(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	input := &itemRequest{}
	err := decodeBody(r, input, true)
	if err != nil {
		return err
	}

	id, err := parseID(input.ID)
	if err != nil {
		return err
	}

	err = GetServicer(ctx).RequestSelect(id)
	if err != nil {
		return err
	}

	return writeAck(w, fmt.Sprintf("item %d queued for selection", id))
}
