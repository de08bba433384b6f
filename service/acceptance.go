package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"
)

type JSON = map[string]interface{}

// Acceptance runs the HTTP scenarios against a server holding items 1..30.
// advance moves the queue clock forward so batches get applied.
func Acceptance(a *biff.A, apiRequest func(method, path string) *apitest.Request, advance func(d time.Duration)) {

	selectedIDs := func() []string {
		resp := apiRequest("GET", "/items/selected").WithQuery("limit", "100").Do()
		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		ids := []string{}
		for _, item := range resp.BodyJson().(JSON)["items"].([]interface{}) {
			ids = append(ids, fmt.Sprint(item.(JSON)["id"]))
		}
		return ids
	}

	a.Alternative("List available items", func(a *biff.A) {
		resp := apiRequest("GET", "/items/available").
			WithQuery("page", "1").
			WithQuery("limit", "3").
			Do()
		Save(resp, "List available items", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"items":   []JSON{{"id": 1}, {"id": 2}, {"id": 3}},
			"total":   30,
			"page":    1,
			"hasMore": true,
		})
	})

	a.Alternative("Search available items", func(a *biff.A) {
		resp := apiRequest("GET", "/items/available").
			WithQuery("search", "2").
			WithQuery("page", "2").
			WithQuery("limit", "5").
			Do()
		Save(resp, "Search available items", `
			Items whose id contains the search term, ordered by id.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"items":   []JSON{{"id": 23}, {"id": 24}, {"id": 25}, {"id": 26}, {"id": 27}},
			"total":   12,
			"page":    2,
			"hasMore": true,
		})
	})

	a.Alternative("List with defaults", func(a *biff.A) {
		resp := apiRequest("GET", "/items/available").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		body := resp.BodyJson().(JSON)
		biff.AssertEqual(len(body["items"].([]interface{})), 20)
		biff.AssertEqual(body["page"], json.Number("1"))
	})

	a.Alternative("List with a bad page", func(a *biff.A) {
		resp := apiRequest("GET", "/items/available").WithQuery("page", "two").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Select item", func(a *biff.A) {
		resp := apiRequest("POST", "/items/select").
			WithBodyJson(JSON{"id": 5}).
			Do()
		Save(resp, "Select item", `
			The selection is queued and applied in the next batch.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusAccepted)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"success": true,
			"message": "item 5 queued for selection",
		})

		biff.AssertEqual(selectedIDs(), []string{})

		advance(1 * time.Second)

		biff.AssertEqual(selectedIDs(), []string{"5"})

		a.Alternative("Selected item is not available", func(a *biff.A) {
			resp := apiRequest("GET", "/items/available").
				WithQuery("search", "5").
				Do()

			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"items":   []JSON{{"id": 15}, {"id": 25}},
				"total":   2,
				"page":    1,
				"hasMore": false,
			})
		})

		a.Alternative("Deselect item", func(a *biff.A) {
			resp := apiRequest("POST", "/items/deselect").
				WithBodyJson(JSON{"id": 5}).
				Do()
			Save(resp, "Deselect item", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusAccepted)

			advance(1 * time.Second)

			biff.AssertEqual(selectedIDs(), []string{})
		})

		a.Alternative("Reorder selected items", func(a *biff.A) {
			apiRequest("POST", "/items/select").WithBodyJson(JSON{"id": 7}).Do()
			apiRequest("POST", "/items/select").WithBodyJson(JSON{"id": "1"}).Do()
			advance(1 * time.Second)
			biff.AssertEqual(selectedIDs(), []string{"5", "7", "1"})

			resp := apiRequest("POST", "/items/reorder").
				WithBodyJson(JSON{
					"items": []JSON{{"id": 1}, {"id": 5}, {"id": 7}},
				}).
				Do()
			Save(resp, "Reorder selected items", `
				Send the full selection in its new order.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusAccepted)

			advance(1 * time.Second)

			biff.AssertEqual(selectedIDs(), []string{"1", "5", "7"})
		})

		a.Alternative("Reorder with unknown item is dead lettered", func(a *biff.A) {
			resp := apiRequest("POST", "/items/reorder").
				WithBodyJson(JSON{
					"items": []JSON{{"id": 6}},
				}).
				Do()
			biff.AssertEqual(resp.StatusCode, http.StatusAccepted)

			advance(1 * time.Second)

			biff.AssertEqual(selectedIDs(), []string{"5"})

			resp = apiRequest("GET", "/deadletters").Do()
			Save(resp, "List dead letters", ``)
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			deadLetters := resp.BodyJson().([]interface{})
			biff.AssertEqual(len(deadLetters), 1)
			biff.AssertEqual(deadLetters[0].(JSON)["key"], "reorder")
		})
	})

	a.Alternative("Select without id", func(a *biff.A) {
		resp := apiRequest("POST", "/items/select").
			WithBodyJson(JSON{}).
			Do()
		Save(resp, "Select item - missing id", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		biff.AssertEqual(resp.BodyJson().(JSON)["error"].(JSON)["message"], "invalid id: id is mandatory")
	})

	a.Alternative("Select with a bad id", func(a *biff.A) {
		resp := apiRequest("POST", "/items/select").
			WithBodyJson(JSON{"id": "abc"}).
			Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Select with unknown fields", func(a *biff.A) {
		resp := apiRequest("POST", "/items/select").
			WithBodyJson(JSON{"id": 1, "force": true}).
			Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Reorder without items", func(a *biff.A) {
		resp := apiRequest("POST", "/items/reorder").
			WithBodyJson(JSON{"items": "1,2"}).
			Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Add item", func(a *biff.A) {
		resp := apiRequest("POST", "/items/add").
			WithBodyJson(JSON{"id": 31, "name": "thirty one"}).
			Do()
		Save(resp, "Add item", `
			New items are applied in a slower batch than selections.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusAccepted)
		biff.AssertEqual(resp.BodyJson().(JSON)["success"], true)

		a.Alternative("Add the same item while pending", func(a *biff.A) {
			resp := apiRequest("POST", "/items/add").
				WithBodyJson(JSON{"id": 31}).
				Do()

			biff.AssertEqual(resp.StatusCode, http.StatusAccepted)
		})

		a.Alternative("Item is added after the batch", func(a *biff.A) {
			advance(1 * time.Second)
			resp := apiRequest("GET", "/items/available").WithQuery("search", "31").Do()
			biff.AssertEqual(resp.BodyJson().(JSON)["total"], json.Number("0"))

			advance(9 * time.Second)
			resp = apiRequest("GET", "/items/available").WithQuery("search", "31").Do()
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"items":   []JSON{{"id": 31, "name": "thirty one"}},
				"total":   1,
				"page":    1,
				"hasMore": false,
			})

			a.Alternative("Add it again", func(a *biff.A) {
				resp := apiRequest("POST", "/items/add").
					WithBodyJson(JSON{"id": 31}).
					Do()
				Save(resp, "Add item - already exists", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusConflict)
			})
		})
	})

	a.Alternative("Add existing item", func(a *biff.A) {
		resp := apiRequest("POST", "/items/add").
			WithBodyJson(JSON{"id": 3}).
			Do()

		biff.AssertEqual(resp.StatusCode, http.StatusConflict)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"error": JSON{
				"message":     "item already exists: id 3",
				"description": "Item already exists",
			},
		})
	})

	a.Alternative("Stats", func(a *biff.A) {
		apiRequest("POST", "/items/select").WithBodyJson(JSON{"id": 1}).Do()
		apiRequest("POST", "/items/select").WithBodyJson(JSON{"id": 1}).Do()

		resp := apiRequest("GET", "/stats").Do()
		Save(resp, "Stats", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		body := resp.BodyJson().(JSON)
		biff.AssertEqualJson(body["items"], JSON{
			"total":     30,
			"selected":  0,
			"available": 30,
		})
		biff.AssertEqual(body["update_queue"].(JSON)["pending"], json.Number("1"))
		biff.AssertEqual(body["update_queue"].(JSON)["overwritten"], json.Number("1"))
	})

	a.Alternative("Health", func(a *biff.A) {
		resp := apiRequest("GET", "/health").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqual(resp.BodyJson().(JSON)["status"], "ok")
	})
}
