package middleware

import (
	"context"
	"net/http"

	"github.com/edushop/edushop/api/web"
	"github.com/sirupsen/logrus"
)

type fields interface{ Fields() map[string]interface{} }

func Fields(err error) (map[string]interface{}, bool) {
	if fe, ok := err.(fields); ok {
		return fe.Fields(), true
	}
	return nil, false
}

type response interface{ Response() (interface{}, int) }

func Response(err error) (interface{}, int, bool) {
	if re, ok := err.(response); ok {
		body, code := re.Response()
		return body, code, true
	}
	return nil, 0, false
}

// Errors turns handler errors into JSON responses. Expected rejections
// (expired coupons, used codes, forbidden transitions) carry their own
// response and are logged at info; everything else is a fault, logged as
// an error and masked behind a plain 500.
func Errors(log logrus.FieldLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			fl := map[string]interface{}{
				"req_id":  ContextRequestID(ctx),
				"message": err,
			}
			if f, ok := Fields(err); ok {
				for k, v := range f {
					fl[k] = v
				}
			}

			if body, code, ok := Response(err); ok {
				if code < http.StatusInternalServerError {
					log.WithFields(logrus.Fields(fl)).Info("request rejected")
				} else {
					log.WithFields(logrus.Fields(fl)).Error("ERROR")
				}
				return web.Respond(ctx, w, body, code)
			}

			log.WithFields(logrus.Fields(fl)).Error("ERROR")

			er := struct {
				Error string `json:"error"`
			}{
				http.StatusText(http.StatusInternalServerError),
			}
			return web.Respond(ctx, w, er, http.StatusInternalServerError)
		}
		return h
	}
	return m
}
