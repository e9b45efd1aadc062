package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

// AboutResponse describes the running binary and process.
type AboutResponse struct {
	Service    string `json:"service"`
	NowUTC     string `json:"now_utc"`
	StartedUTC string `json:"started_utc"`
	UptimeSec  int64  `json:"uptime_sec"`
	GoVersion  string `json:"go_version"`
	GOOS       string `json:"goos"`
	GOARCH     string `json:"goarch"`
	FanBackend string `json:"fan_backend"`
	ModulePath string `json:"module_path,omitempty"`
	Version    string `json:"version,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
}

// buildInfo fills the VCS fields stamped by the go tool.
func buildInfo(resp *AboutResponse) {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return
	}
	resp.ModulePath = bi.Main.Path
	resp.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			resp.Commit = s.Value
		case "vcs.modified":
			resp.Dirty = s.Value == "true"
		case "vcs.time":
			resp.BuildTime = s.Value
		}
	}
}

func AboutHandler(status *Status) http.Handler {
	base := AboutResponse{
		Service:    "thermal-governor",
		StartedUTC: formatTime(status.start),
		GoVersion:  runtime.Version(),
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		FanBackend: status.summary.FanBackend,
	}
	buildInfo(&base)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		now := time.Now().UTC()
		resp := base
		resp.NowUTC = formatTime(now)
		resp.UptimeSec = int64(now.Sub(status.start).Seconds())
		writeJSON(w, http.StatusOK, resp)
	})
}
