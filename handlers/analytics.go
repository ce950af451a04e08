package handlers

import (
	"net/http"
	"time"

	"github.com/ray-remotestate/restro-qr/database/dbhelper"
	"github.com/ray-remotestate/restro-qr/models"
	"github.com/ray-remotestate/restro-qr/utils"
)

const (
	dateLayout            = "2006-01-02"
	defaultAnalyticsRange = 30 * 24 * time.Hour
	maxAnalyticsRange     = 366 * 24 * time.Hour
)

// parseBound accepts a date or an RFC3339 timestamp. A bare date used as the
// upper bound covers that whole day.
func parseBound(raw string, upper bool) (time.Time, error) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		if upper {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, models.NewValidationError("dates must be YYYY-MM-DD or RFC3339")
	}
	return t, nil
}

func analyticsRange(r *http.Request, now time.Time) (from, to time.Time, err error) {
	to = now
	from = now.Add(-defaultAnalyticsRange)

	query := r.URL.Query()
	if raw := query.Get("to"); raw != "" {
		if to, err = parseBound(raw, true); err != nil {
			return
		}
		if query.Get("from") == "" {
			from = to.Add(-defaultAnalyticsRange)
		}
	}
	if raw := query.Get("from"); raw != "" {
		if from, err = parseBound(raw, false); err != nil {
			return
		}
	}
	if !from.Before(to) {
		err = models.NewValidationError("from must be before to")
		return
	}
	if to.Sub(from) > maxAnalyticsRange {
		err = models.NewValidationError("range cannot exceed one year")
	}
	return
}

func GetAnalytics(w http.ResponseWriter, r *http.Request) {
	restaurantID, _, ok := restaurantFromPath(w, r)
	if !ok {
		return
	}

	from, to, err := analyticsRange(r, time.Now().UTC())
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	analytics, err := dbhelper.GetAnalytics(r.Context(), restaurantID, from, to)
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to compute analytics")
		return
	}
	utils.RespondJSON(w, http.StatusOK, analytics)
}
