// ABOUTME: Simple dyndns-style endpoint: GET /dnsup/v1/simple with Basic auth.
// ABOUTME: Synthesizes replace batches (delete rrset, then adds) per hostname and family.

package httpfront

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mauromedda/dnsupd/internal/engine"
	"github.com/mauromedda/dnsupd/internal/record"
)

// handleSimple implements the classic dyndns update form. The username is
// the zone, the password its update secret. hostname and myip take comma
// separated lists; IPv6 addresses may ride along in myip or come separately
// in myipv6. offline=1 removes the address records instead.
func (s *Server) handleSimple(w http.ResponseWriter, r *http.Request) {
	zone, secret, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="dnsupd"`)
		writeSimple(w, http.StatusUnauthorized, "badauth")
		return
	}

	q := r.URL.Query()
	hostnames := splitList(q.Get("hostname"))
	if len(hostnames) == 0 {
		writeSimple(w, http.StatusBadRequest, "911")
		return
	}

	v4, v6 := splitFamilies(splitList(q.Get("myip")))
	if extra := splitList(q.Get("myipv6")); len(extra) > 0 {
		v6 = extra
	}
	if q.Get("offline") != "" {
		v4, v6 = nil, nil
	} else if len(v4) == 0 && len(v6) == 0 {
		// Only offline may synthesize a delete-only batch; a request with
		// no addresses must not silently wipe the existing records.
		writeSimple(w, http.StatusBadRequest, "911")
		return
	}

	ttl := s.cfg.DefaultTTL
	if t := q.Get("ttl"); t != "" {
		n, err := strconv.ParseUint(t, 10, 32)
		if err != nil {
			writeSimple(w, http.StatusBadRequest, "911")
			return
		}
		ttl = uint32(n)
	}

	var updates []engine.UpdateRequest
	for _, host := range hostnames {
		for _, fam := range []struct {
			rtype string
			ips   []string
		}{{"A", v4}, {"AAAA", v6}} {
			// Replace semantics: clear the rrset, then add the new addresses.
			updates = append(updates, engine.UpdateRequest{
				Op: "delete", DNSName: host, Type: fam.rtype,
			})
			for _, ip := range fam.ips {
				updates = append(updates, engine.UpdateRequest{
					Op: "add", DNSName: host, Type: fam.rtype, TTL: ttl, Data: ip,
				})
			}
		}
	}

	res := s.engine.Submit(r.Context(), engine.Request{
		Zone:       zone,
		Credential: engine.Credential{Secret: secret},
		JSON:       updates,
	})

	status := statusFor(res, http.StatusUnauthorized)
	switch res.Kind {
	case engine.Applied:
		writeSimple(w, status, goodLines(res.Ops))
	case engine.Denied:
		writeSimple(w, status, "badauth")
	default:
		writeSimple(w, status, "911")
	}
}

// goodLines renders one "good <ips>" line per updated hostname.
func goodLines(ops []record.Op) string {
	var lines []string
	last := ""
	for _, op := range ops {
		if op.Action != record.ActionAdd {
			continue
		}
		if op.Record.Name != last {
			last = op.Record.Name
			lines = append(lines, "good "+op.Record.Value)
		} else {
			lines[len(lines)-1] += "," + op.Record.Value
		}
	}
	if len(lines) == 0 {
		return "good"
	}
	return strings.Join(lines, "\n")
}

func writeSimple(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	fmt.Fprintln(w, body)
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func splitFamilies(ips []string) (v4, v6 []string) {
	for _, ip := range ips {
		if strings.Contains(ip, ":") {
			v6 = append(v6, ip)
		} else {
			v4 = append(v4, ip)
		}
	}
	return v4, v6
}
