package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
)

// RequestValidator checks requests against the OpenAPI document before they reach a handler.
type RequestValidator struct {
	router routers.Router
	prefix string
}

// NewRequestValidator loads spec. Paths in the document are relative to prefix.
func NewRequestValidator(spec []byte, prefix string) (*RequestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	// requests are matched on path alone, the server list only documents the prefix
	doc.Servers = nil

	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &RequestValidator{router: router, prefix: strings.TrimRight(prefix, "/")}, nil
}

func (v *RequestValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := *r.URL
		u.Path = strings.TrimPrefix(r.URL.Path, v.prefix)
		vr := r.WithContext(r.Context())
		vr.URL = &u

		route, pathParams, err := v.router.FindRoute(vr)
		if err != nil {
			// unknown routes and methods are chi's to answer
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    vr,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         true,
			},
		}
		if err := openapi3filter.ValidateRequest(context.WithoutCancel(r.Context()), input); err != nil {
			writeAppError(w, internal.NewValidationErrors(collectErrors(nil, err, "")))
			return
		}

		// the validator consumed and replaced the body on vr
		r.Body = vr.Body
		next.ServeHTTP(w, r)
	})
}

func collectErrors(out []internal.ValidationError, err error, field string) []internal.ValidationError {
	switch e := err.(type) {
	case openapi3.MultiError:
		for _, inner := range e {
			out = collectErrors(out, inner, field)
		}
	case *openapi3filter.RequestError:
		if e.Parameter != nil {
			field = e.Parameter.Name
		} else if e.RequestBody != nil && field == "" {
			field = "body"
		}
		if e.Err != nil {
			return collectErrors(out, e.Err, field)
		}
		out = append(out, internal.ValidationError{Field: field, Message: e.Reason, Code: string(internal.ErrCodeValidationFailed)})
	case *openapi3.SchemaError:
		if pointer := e.JSONPointer(); len(pointer) > 0 {
			field = strings.Join(pointer, ".")
		}
		out = append(out, internal.ValidationError{Field: field, Message: e.Reason, Code: string(internal.ErrCodeValidationFailed)})
	default:
		if field == "" {
			field = "request"
		}
		out = append(out, internal.ValidationError{Field: field, Message: err.Error(), Code: string(internal.ErrCodeValidationFailed)})
	}
	return out
}
