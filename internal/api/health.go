package api

import (
	"net/http"

	"github.com/starford/docreg/internal/registry"
)

// Live always reports ok.
func Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports 503 until the registry holds a snapshot.
func Ready(reg Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st := reg.Status()
		if st.State != registry.StateReady {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": string(st.State)})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "snapshot_id": st.SnapshotID})
	}
}
