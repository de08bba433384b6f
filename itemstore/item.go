package itemstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidID = errors.New("invalid id")

// Item is identified by ID. Payload holds any extra fields a client attached,
// they travel flattened next to "id" in the JSON form.
type Item struct {
	ID      int64
	Payload map[string]any
}

func (i *Item) MarshalJSON() ([]byte, error) {
	if len(i.Payload) == 0 {
		return []byte(`{"id":` + strconv.FormatInt(i.ID, 10) + `}`), nil
	}

	doc := make(map[string]any, len(i.Payload)+1)
	for k, v := range i.Payload {
		doc[k] = v
	}
	doc["id"] = i.ID

	return json.Marshal(doc)
}

func (i *Item) UnmarshalJSON(data []byte) error {
	doc := map[string]any{}

	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	err := d.Decode(&doc)
	if err != nil {
		return err
	}

	id, err := ParseID(doc["id"])
	if err != nil {
		return err
	}
	delete(doc, "id")

	i.ID = id
	i.Payload = nil
	if len(doc) > 0 {
		i.Payload = doc
	}

	return nil
}

// document is the form matched by where filters.
func (i *Item) document() map[string]any {
	doc := make(map[string]any, len(i.Payload)+1)
	for k, v := range i.Payload {
		if n, ok := v.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				v = f
			}
		}
		doc[k] = v
	}
	doc["id"] = float64(i.ID)
	return doc
}

// ParseID accepts integer JSON numbers and numeric strings, the same values a
// client can send either as body or as query parameter. Identifiers are
// positive.
func ParseID(v any) (int64, error) {
	var id int64
	switch value := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: id is mandatory", ErrInvalidID)
	case json.Number:
		n, err := strconv.ParseInt(value.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: '%s' is not an integer", ErrInvalidID, value.String())
		}
		id = n
	case float64:
		if value != float64(int64(value)) {
			return 0, fmt.Errorf("%w: '%v' is not an integer", ErrInvalidID, value)
		}
		id = int64(value)
	case int64:
		id = value
	case int:
		id = int64(value)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: '%s' is not an integer", ErrInvalidID, value)
		}
		id = n
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidID, v)
	}

	if id <= 0 {
		return 0, fmt.Errorf("%w: %d must be positive", ErrInvalidID, id)
	}

	return id, nil
}
