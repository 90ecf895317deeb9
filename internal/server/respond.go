package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/textgen"
)

const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs the internal error and returns a sanitized JSON error.
func writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		zap.L().Error(msg, zap.String("component", "server"), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a domain error to a status code.
func fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case isNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case textgen.IsUpstream(err):
		writeError(w, http.StatusBadGateway, msg, err)
	default:
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}

// conflict reports a precondition that did not hold.
func conflict(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusConflict, map[string]string{"error": msg})
}

// changed reports the outcome of a conditional operation.
func changed(w http.ResponseWriter, ok bool, err error, msg string) {
	switch {
	case err != nil:
		fail(w, msg+" failed", err)
	case !ok:
		conflict(w, msg+" precondition not met")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"changed": true})
	}
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body", nil)
		return false
	}
	return true
}

// degrade logs a read failure; callers then write an empty result.
func degrade(msg string, err error) {
	zap.L().Warn(msg, zap.String("component", "server"), zap.Error(eris.Wrap(err, msg)))
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
