package apiitemsv1

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	json2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/itempicker/itemstore"
	"github.com/fulldump/itempicker/service"
)

const maxBodySize = 1 << 20

// decodeBody reads a single JSON value from the request body. Unknown members
// are rejected when strict is set.
func decodeBody(r *http.Request, v any, strict bool) error {
	d := jsontext.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	err := json2.UnmarshalDecode(d, v, json2.RejectUnknownMembers(strict))
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &service.ValidationError{Field: "body", Reason: "is empty"}
	}
	if err != nil {
		return &service.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// parseID accepts a JSON number or a numeric string.
func parseID(v jsontext.Value) (int64, error) {
	switch v.Kind() {
	case 0, 'n':
		return itemstore.ParseID(nil)
	case '"':
		s := ""
		err := json2.Unmarshal(v, &s)
		if err != nil {
			return 0, err
		}
		return itemstore.ParseID(s)
	case '0':
		return itemstore.ParseID(string(v))
	}
	return itemstore.ParseID(v.Kind().String())
}

func queryInt(query url.Values, name string) (int, error) {
	value := query.Get(name)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &service.ValidationError{Field: name, Reason: "'" + value + "' is not an integer"}
	}
	return n, nil
}

func parseQuery(r *http.Request) (itemstore.Query, error) {
	query := r.URL.Query()

	q := itemstore.Query{
		Filter: query.Get("search"),
	}

	var err error
	q.Page, err = queryInt(query, "page")
	if err != nil {
		return q, err
	}
	q.Limit, err = queryInt(query, "limit")
	if err != nil {
		return q, err
	}

	if where := query.Get("where"); where != "" {
		err := json2.Unmarshal([]byte(where), &q.Where)
		if err != nil {
			return q, &service.ValidationError{Field: "where", Reason: err.Error()}
		}
	}

	return q, nil
}
