package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/edushop/edushop/api/web"
	"github.com/sirupsen/logrus"
	"github.com/zenazn/goji/web/mutil"
)

// Logger emits one line per request once the response is written, carrying
// the request id so settlement callbacks can be traced end to end.
func Logger(log logrus.FieldLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			log := log

			if rid := ContextRequestID(ctx); rid != "" {
				log = log.WithField("req_id", rid)
			}

			startTime := time.Now().UTC()

			lw := mutil.WrapWriter(w)
			err := handler(ctx, lw, r)

			log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remoteaddr":  r.RemoteAddr,
				"statuscode":  lw.Status(),
				"bytes":       lw.BytesWritten(),
				"duration_ms": time.Since(startTime).Milliseconds(),
			}).Info("request")

			return err
		}
		return h
	}
	return m
}
