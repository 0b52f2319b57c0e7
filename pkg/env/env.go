package env

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

const unset = "unset"

var version atomic.Value

// Records the running build's version. Called once from main.
func SetVersion(v string) {
	if v == "" {
		v = unset
	}
	version.Store(v)
}

func Version() string {
	if v, ok := version.Load().(string); ok {
		return v
	}
	return unset
}

type versionInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(versionInfo{Name: "kantek", Version: Version()})
}
