// ABOUTME: Root welcome page summarizing which update services are enabled.

package httpfront

import (
	"fmt"
	"net/http"
)

func (s *Server) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	onOff := func(b bool) string {
		if b {
			return "enabled"
		}
		return "disabled"
	}

	fmt.Fprintf(w, "dnsupd: dynamic DNS update service\n\n")
	fmt.Fprintf(w, "  simple updates   %-8s  GET  %s/v1/simple\n", onOff(s.cfg.Simple), PathPrefix)
	fmt.Fprintf(w, "  JSON updates     %-8s  POST %s/v1/update\n", onOff(s.cfg.Updates), PathPrefix)
	fmt.Fprintf(w, "\nYou need an update secret from your provider to use this service.\n")
}
