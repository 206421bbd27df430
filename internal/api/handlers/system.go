// system.go — публичные информационные endpoints: hub_info и welcome.
package handlers

import (
	"fmt"
	"net/http"
)

// hubInfoResponse — тело ответа GET /hub_info/.
type hubInfoResponse struct {
	ChallengeText             string `json:"challenge_text"`
	LatestAuthVersion         string `json:"latest_auth_version"`
	MaxFileUploadSizeMegabytes int64 `json:"max_file_upload_size_megabytes"`
	ReadURLPrefix             string `json:"read_url_prefix"`
}

// HubInfo обрабатывает GET /hub_info/. Публичный endpoint:
// клиенты получают challenge text и префикс URL чтения.
func (h *Handler) HubInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, hubInfoResponse{
		ChallengeText:             h.cfg.ChallengeText(),
		LatestAuthVersion:         "v1",
		MaxFileUploadSizeMegabytes: h.cfg.MaxFileUploadSizeMB,
		ReadURLPrefix:             h.hub.ReadURLPrefix(),
	})
}

// Welcome обрабатывает GET /: приветственная HTML-страница.
func (h *Handler) Welcome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Gaia Hub</title></head>
<body>
<h1>Gaia Hub</h1>
<p>Server: %s</p>
<p>Read URL prefix: <a href="%s">%s</a></p>
</body>
</html>
`, h.cfg.ServerName, h.hub.ReadURLPrefix(), h.hub.ReadURLPrefix())
}
