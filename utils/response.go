package utils

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

func RespondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

// RespondError writes {"error": msg}.
func RespondError(w http.ResponseWriter, status int, msg string) {
	RespondJSON(w, status, map[string]string{"error": msg})
}

// RespondServerError logs err and hides it from the client.
func RespondServerError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	logrus.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Error(msg)
	RespondError(w, http.StatusInternalServerError, msg)
}
