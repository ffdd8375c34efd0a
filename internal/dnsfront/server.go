// ABOUTME: RFC2136 UPDATE listener over UDP and TCP using miekg/dns.
// ABOUTME: Decodes update messages, submits to the engine, answers with exact RCODEs.

package dnsfront

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/miekg/dns"

	"github.com/mauromedda/dnsupd/internal/backend"
	"github.com/mauromedda/dnsupd/internal/engine"
	"github.com/mauromedda/dnsupd/internal/metrics"
	"github.com/mauromedda/dnsupd/internal/record"
)

// Config controls which transports the DNS front end binds.
type Config struct {
	Addr string // host:port
	UDP  bool
	TCP  bool
}

// Server is the RFC2136 front end.
type Server struct {
	engine *engine.Engine
	tsig   *zoneTsigProvider
	cfg    Config
	logger *slog.Logger

	udp *dns.Server
	tcp *dns.Server
}

// New creates a DNS front end over the given engine. The backend is needed
// separately for TSIG secret resolution, which happens before the engine
// ever sees the request.
func New(eng *engine.Engine, b backend.Backend, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine: eng,
		tsig:   &zoneTsigProvider{backend: b, timeout: 5 * time.Second},
		cfg:    cfg,
		logger: logger,
	}
}

// Start binds the configured transports. Each listener runs in its own
// goroutine; failures after startup are logged, not fatal.
func (s *Server) Start() error {
	handler := dns.HandlerFunc(s.handle)

	if s.cfg.UDP {
		s.udp = &dns.Server{
			Addr:         s.cfg.Addr,
			Net:          "udp",
			Handler:      handler,
			TsigProvider: s.tsig,
		}
		go s.serve(s.udp, "udp")
	}
	if s.cfg.TCP {
		s.tcp = &dns.Server{
			Addr:         s.cfg.Addr,
			Net:          "tcp",
			Handler:      handler,
			TsigProvider: s.tsig,
		}
		go s.serve(s.tcp, "tcp")
	}
	if s.udp == nil && s.tcp == nil {
		return fmt.Errorf("dns front end enabled with no transports")
	}
	return nil
}

func (s *Server) serve(srv *dns.Server, net string) {
	s.logger.Info("dns listener starting", "net", net, "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		s.logger.Error("dns listener stopped", "net", net, "error", err)
	}
}

// Stop shuts both listeners down.
func (s *Server) Stop(ctx context.Context) {
	if s.udp != nil {
		_ = s.udp.ShutdownContext(ctx)
	}
	if s.tcp != nil {
		_ = s.tcp.ShutdownContext(ctx)
	}
}

// rcodeFor maps an engine result onto the RFC2136 response vocabulary.
// UnknownZone answers NOTAUTH (RFC2136 uses it for "updates not enabled for
// zone"; some providers prefer NOTZONE, we do not).
func rcodeFor(res engine.Result) int {
	switch res.Kind {
	case engine.Applied:
		return dns.RcodeSuccess
	case engine.Denied:
		if res.Deny == engine.UnknownZone {
			return dns.RcodeNotAuth
		}
		return dns.RcodeRefused
	case engine.Invalid:
		return dns.RcodeFormatError
	default:
		if res.Reject == backend.ReasonConflict {
			return dns.RcodeNXRrset
		}
		return dns.RcodeServerFailure
	}
}

// handle processes one DNS message. Exactly one response is written.
func (s *Server) handle(w dns.ResponseWriter, r *dns.Msg) {
	metrics.DNSRequests.WithLabelValues(dns.OpcodeToString[r.Opcode]).Inc()
	cli := w.RemoteAddr().String()

	rcode := s.process(w, r, cli)
	metrics.DNSResponses.WithLabelValues(dns.RcodeToString[rcode]).Inc()

	m := new(dns.Msg)
	m.SetRcode(r, rcode)
	if tsig := r.IsTsig(); tsig != nil && w.TsigStatus() == nil {
		m.SetTsig(tsig.Hdr.Name, tsig.Algorithm, 300, time.Now().Unix())
	}
	if err := w.WriteMsg(m); err != nil {
		s.logger.Error("writing dns response", "client", cli, "error", err)
	}
}

func (s *Server) process(w dns.ResponseWriter, r *dns.Msg, cli string) int {
	if r.Opcode != dns.OpcodeUpdate {
		// Ordinary queries are not served here; nsupdate sends SOA probes
		// when no zone is given, those get the same answer.
		s.logger.Debug("rejected non-update query", "client", cli)
		return dns.RcodeNotImplemented
	}

	// Zone section must be exactly one SOA entry, per RFC2136 section 2.3.
	if len(r.Question) != 1 || r.Question[0].Qtype != dns.TypeSOA {
		s.logger.Debug("rejected update with invalid zone section", "client", cli)
		return dns.RcodeFormatError
	}
	zone := r.Question[0].Name

	// Prerequisite sections are not supported.
	if len(r.Answer) > 0 {
		s.logger.Debug("rejected update with prerequisites", "client", cli, "zone", zone)
		return dns.RcodeRefused
	}

	if len(r.Ns) == 0 {
		return dns.RcodeFormatError
	}

	// The credential is the TSIG signature, already checked by the server
	// against the backend secret for the key (= zone) name.
	tsig := r.IsTsig()
	if tsig == nil {
		s.logger.Debug("rejected unsigned update", "client", cli, "zone", zone)
		return dns.RcodeRefused
	}
	if err := w.TsigStatus(); err != nil {
		s.logger.Debug("rejected update with bad signature", "client", cli, "zone", zone, "error", err)
		return dns.RcodeRefused
	}
	// A signature under some other zone's key proves nothing about this zone.
	if record.Canonical(tsig.Hdr.Name) != record.Canonical(zone) {
		s.logger.Debug("rejected update signed with foreign key", "client", cli, "zone", zone, "key", tsig.Hdr.Name)
		return dns.RcodeRefused
	}

	res := s.engine.Submit(context.Background(), engine.Request{
		Zone:       zone,
		Credential: engine.Credential{Verified: true},
		Wire:       r.Ns,
	})
	return rcodeFor(res)
}
