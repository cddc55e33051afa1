package mcp

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
)

// RegisterHTTP mounts the device login helper pages next to the MCP endpoint.
func (s *Service) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/sharepoint/auth/device/", s.DeviceHandler())
	mux.HandleFunc("/sharepoint/auth/pending", s.PendingListHandler())
	mux.HandleFunc("/sharepoint/auth/pending/clear", s.PendingClearHandler())
}

// DeviceHandler serves the device login page for a pending flow id.
func (s *Service) DeviceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// URL: /sharepoint/auth/device/{flowID}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 4 {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		flowID := parts[3]
		prompt, ok := s.authMgr.PendingPrompt(flowID)
		if !ok {
			http.Error(w, "no pending login", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, buildDeviceLoginHTML(prompt.VerificationURI, prompt.UserCode, prompt.Message))
	}
}

// buildDeviceLoginHTML renders a clickable link with a copyable code.
func buildDeviceLoginHTML(verificationURI, userCode, message string) string {
	if verificationURI == "" {
		verificationURI = "https://microsoft.com/devicelogin"
	}
	escURL := html.EscapeString(verificationURI)
	escCode := html.EscapeString(userCode)
	if escCode == "" {
		escMsg := html.EscapeString(message)
		return fmt.Sprintf(`<html><body>
<h3>Sign in to Microsoft 365</h3>
<p>Open <a href="%[1]s" target="_blank" rel="noopener noreferrer">%[1]s</a> and follow the instructions.</p>
<pre>%[2]s</pre>
<p>Keep this tab open; return to your assistant after completing sign-in.</p>
</body></html>`, escURL, escMsg)
	}
	return fmt.Sprintf(`<html><body style="font-family: -apple-system, Segoe UI, Roboto, sans-serif;">
<h3>Sign in to Microsoft 365</h3>
<p>Click to open: <a href="%[1]s" target="_blank" rel="noopener noreferrer">%[1]s</a></p>
<p>Then enter this code:</p>
<p style="font-size: 1.4em; font-weight: 600;"><code>%[2]s</code> <button onclick="navigator.clipboard.writeText('%[3]s')">Copy</button></p>
<p>Keep this tab open; return to your assistant after completing sign-in.</p>
</body></html>`, escURL, escCode, escCode)
}

// PendingListHandler returns JSON of device flows awaiting completion.
func (s *Service) PendingListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.authMgr.PendingLogins())
	}
}

// PendingClearHandler abandons every pending device flow.
func (s *Service) PendingClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		cleared := s.authMgr.ClearPendingLogins()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"cleared": len(cleared), "flowIds": cleared})
	}
}
