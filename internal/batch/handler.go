package batch

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Request is the body of every batch endpoint.
type Request struct {
	IDs    []int64 `json:"ids" validate:"required,min=1,max=500,dive,gt=0"`
	Reason string  `json:"reason" validate:"max=500"`
}

// ItemFunc performs one action for one id on behalf of actor.
type ItemFunc func(ctx context.Context, actor shared.Actor, id int64, reason string) error

var validate = validator.New()

// Handler returns an HTTP handler that decodes a Request and applies fn to
// every id with the bulk transaction profile.
func (o *Operator) Handler(fn ItemFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := httpx.Actor(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var req Request
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		res, err := o.Apply(db.WithBulk(r.Context()), req.IDs, func(ctx context.Context, id int64) error {
			return fn(ctx, actor, id, req.Reason)
		})
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		status := http.StatusOK
		if res.Failed > 0 {
			status = http.StatusMultiStatus
		}
		httpx.JSON(w, status, res)
	}
}
