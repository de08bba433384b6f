package apiitemsv1

import (
	"context"
	"fmt"
	"net/http"

	json2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/itempicker/itemstore"
	"github.com/fulldump/itempicker/service"
)

// addItem accepts any document with an "id", the rest of the members are kept
// as the item payload.
func addItem(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	doc := map[string]jsontext.Value{}
	err := decodeBody(r, &doc, false)
	if err != nil {
		return err
	}

	id, err := parseID(doc["id"])
	if err != nil {
		return err
	}
	delete(doc, "id")

	item := &itemstore.Item{ID: id}
	if len(doc) > 0 {
		item.Payload = make(map[string]any, len(doc))
		for k, v := range doc {
			var value any
			err := json2.Unmarshal(v, &value)
			if err != nil {
				return &service.ValidationError{Field: k, Reason: err.Error()}
			}
			item.Payload[k] = value
		}
	}

	err = GetServicer(ctx).RequestAdd(item)
	if err != nil {
		return err
	}

	return writeAck(w, fmt.Sprintf("item %d queued, it will be added in the next batch", id))
}
