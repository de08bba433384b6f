package apiitemsv1

import (
	"github.com/fulldump/box"

	"github.com/fulldump/itempicker/service"
)

func BuildV1Items(parent *box.R, s service.Servicer) *box.R {

	items := parent.Resource("/items").
		WithInterceptors(
			injectServicer(s),
		)

	items.Resource("/available").
		WithActions(
			box.Get(listAvailable),
		)

	items.Resource("/selected").
		WithActions(
			box.Get(listSelected),
		)

	items.Resource("/select").
		WithActions(
			box.Post(selectItem),
		)

	items.Resource("/deselect").
		WithActions(
			box.Post(deselectItem),
		)

	items.Resource("/reorder").
		WithActions(
			box.Post(reorderItems),
		)

	items.Resource("/add").
		WithActions(
			box.Post(addItem),
		)

	return items
}
