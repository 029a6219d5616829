package handlers

import "net/http"

type Health struct {
	OK       bool   `json:"ok"`
	Database string `json:"database,omitempty"`
}

func GetHealth(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, Health{OK: false, Database: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, Health{OK: true})
	}
}
