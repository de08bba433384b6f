package apiitemsv1

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/itempicker/service"
)

const ContextServicerKey = "8c1e4f52-7a3b-11ef-b864-2b1e7d4c9a10"

func SetServicer(ctx context.Context, s service.Servicer) context.Context {
	return context.WithValue(ctx, ContextServicerKey, s)
}

func GetServicer(ctx context.Context) service.Servicer {
	return ctx.Value(ContextServicerKey).(service.Servicer)
}

func injectServicer(s service.Servicer) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			next(SetServicer(ctx, s))
		}
	}
}
