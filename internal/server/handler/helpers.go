package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// validate is the shared request-payload validator.
var validate = validator.New(validator.WithRequiredStructEnabled())

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps an engine error onto an HTTP response. Unmapped
// errors become an opaque 500 after being logged by the caller.
func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, engineStatus(err), err.Error())
}

// engineStatus translates domain error conditions into HTTP status codes.
func engineStatus(err error) int {
	var (
		notCurrent    *domain.NotCurrentRoundError
		notResolved   *domain.RoundNotResolvedError
		stale         *domain.StalePriceError
		notRegistered *domain.AssetNotRegisteredError
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrHalted),
		errors.Is(err, domain.ErrNothingToClaim),
		errors.Is(err, domain.ErrStakingClosed),
		errors.Is(err, domain.ErrOutcomeMismatch),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.As(err, &notCurrent),
		errors.As(err, &notResolved):
		return http.StatusConflict
	case errors.Is(err, domain.ErrWrongDenom),
		errors.Is(err, domain.ErrBelowMinimum),
		errors.Is(err, domain.ErrUnknownOutcome),
		errors.Is(err, domain.ErrNeedOneAdmin),
		errors.Is(err, domain.ErrEmptyAssetList),
		errors.Is(err, domain.ErrBadFeeRatios),
		errors.Is(err, domain.ErrBadParams),
		errors.Is(err, domain.ErrOverflow),
		errors.Is(err, domain.ErrInvalidAccount),
		errors.As(err, &notRegistered):
		return http.StatusBadRequest
	case errors.As(err, &stale):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeValid decodes a JSON body into v and runs struct validation on it.
func decodeValid(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return validate.Struct(v)
}

// pathID parses a numeric {id} path parameter.
func pathID(r *http.Request, name string) (uint64, error) {
	return strconv.ParseUint(r.PathValue(name), 10, 64)
}

// queryLimit reads the limit query parameter; zero means "use the default".
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

// queryUint64 reads a uint64 query parameter, zero when absent or malformed.
func queryUint64(r *http.Request, name string) uint64 {
	n, err := strconv.ParseUint(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// queryCursor reads an exclusive numeric cursor; nil means "from the start".
func queryCursor(r *http.Request, name string) *uint64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
