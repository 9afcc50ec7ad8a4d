package restyutil

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type Output interface {
	Write(id string, contents string)
}

// Dump writes every request the client completes, together with its response,
// to output. Ids count up from 1 in the order responses arrive. Transport
// errors are logged instead.
func Dump(client *resty.Client, output Output) {
	if output == nil {
		return
	}

	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		if res.Request.RawRequest == nil || res.RawResponse == nil {
			return nil
		}
		id := atomic.AddUint64(&idcounter, 1)
		output.Write(fmt.Sprintf("%06d", id), formatHttpMessage(res))
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		slog.DebugContext(
			req.Context(), "request failed",
			"method", req.Method,
			"url", req.URL,
			"err", err,
		)
	})
}
