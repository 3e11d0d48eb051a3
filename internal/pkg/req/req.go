/*
Package req provides helper functions for HTTP request parsing and data binding.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"taskflow/internal/pkg/errs"
)

// MaxJSONBodySize caps the size of JSON request bodies.
const MaxJSONBodySize int64 = 1 << 20 // 1 MB

// BindJSON decodes the JSON request body into dst. Unknown fields, trailing content and
// bodies over MaxJSONBodySize are rejected.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxJSONBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

// URLParam returns the named chi route parameter, or ErrInvalidParams when it is empty.
func URLParam(r *http.Request, name string) (string, *errs.CustomError) {
	value := strings.TrimSpace(chi.URLParam(r, name))
	if value == "" {
		return "", errs.NewError(errs.ErrInvalidParams)
	}
	return value, nil
}

// QueryParam returns the first value of the named query parameter, or ErrInvalidParams when
// it is missing or empty.
func QueryParam(r *http.Request, name string) (string, *errs.CustomError) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return "", errs.NewError(errs.ErrInvalidParams)
	}
	return value, nil
}
