package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"
	"github.com/kislikjeka/pesaprime/pkg/logger"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

// StatusOf maps an error's class to an HTTP status
func StatusOf(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeConcurrency:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondWithAppError writes err with the status of its class. Internal and
// configuration failures are logged and their detail is withheld.
func respondWithAppError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status := StatusOf(err)

	resp := ErrorResponse{Error: "internal error", Code: apperrors.ErrCodeInternal}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		resp.Error = appErr.Message
		resp.Code = appErr.Code
	}

	if status >= http.StatusInternalServerError {
		log.WithContext(r.Context()).Error("request failed", "code", resp.Code, "error", err)
		if resp.Code != apperrors.ErrCodeConfiguration {
			resp.Error = "internal error"
		}
	} else {
		resp.Detail = err.Error()
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	respondWithJSON(w, status, resp)
}

// decodeJSON decodes and validates a request body
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body")
	}

	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return apperrors.New(apperrors.ErrCodeValidation, "invalid field "+fe.Field()+": "+fe.Tag())
		}
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body")
	}
	return nil
}

// uuidParam parses a chi URL parameter as a UUID
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperrors.New(apperrors.ErrCodeValidation, "invalid "+name)
	}
	return id, nil
}
