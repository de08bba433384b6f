package apiitemsv1

import (
	"context"
	"fmt"
	"net/http"
)

func deselectItem(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	input := &itemRequest{}
	err := decodeBody(r, input, true)
	if err != nil {
		return err
	}

	id, err := parseID(input.ID)
	if err != nil {
		return err
	}

	err = GetServicer(ctx).RequestDeselect(id)
	if err != nil {
		return err
	}

	return writeAck(w, fmt.Sprintf("item %d queued for deselection", id))
}
