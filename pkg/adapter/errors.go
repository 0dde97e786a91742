package adapter

import (
	"net/http"

	"github.com/morezero/flow-functions/pkg/callable"
)

// Normalize maps a failure to its HTTP status and error body.
//
// With an override configured, the override's status is used for the
// transport while the body is always tagged INTERNAL.
func (a *Adapter) Normalize(err error) (int, *callable.Error) {
	if a.opts.OnError != nil {
		report := a.opts.OnError(err)
		status := report.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return status, callable.Internal(report.Message)
	}

	ce := callable.FromError(err)
	return ce.HTTPStatus(), ce
}
