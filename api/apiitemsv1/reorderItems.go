package apiitemsv1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/itempicker/service"
)

// Clients send back the selected page they are showing, only ids matter.
type reorderRequest struct {
	Items *[]struct {
		ID jsontext.Value `json:"id"`
	} `json:"items"`
}

func reorderItems(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	input := &reorderRequest{}
	err := decodeBody(r, input, false)
	if err != nil {
		return err
	}

	if input.Items == nil {
		return &service.ValidationError{Field: "items", Reason: "must be an array"}
	}

	ids := make([]int64, 0, len(*input.Items))
	for i, item := range *input.Items {
		id, err := parseID(item.ID)
		if err != nil {
			return &service.ValidationError{Field: fmt.Sprintf("items[%d].id", i), Reason: err.Error()}
		}
		ids = append(ids, id)
	}

	err = GetServicer(ctx).RequestReorder(ids)
	if err != nil {
		return err
	}

	return writeAck(w, fmt.Sprintf("reorder of %d items queued", len(ids)))
}
