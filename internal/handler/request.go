package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dropship-rest-api/internal/middleware"
	"dropship-rest-api/internal/model"
	"dropship-rest-api/pkg/apierror"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// currentUser returns the authenticated caller or a 401 error.
func currentUser(r *http.Request) (model.User, error) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok || user.ID == "" {
		return model.User{}, apierror.Unauthorized("")
	}
	return user, nil
}

// productID parses the {id} URL parameter.
func productID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierror.BadRequest("product id must be a positive integer")
	}
	return id, nil
}

// decodeJSON reads an optional JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apierror.BadRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierror.ValidationError("Invalid query parameter", apierror.FieldError{
			Field: name, Message: "must be an integer",
		})
	}
	return v, nil
}
