package dhcpproxy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alexculea/preboot-oxide/internal/dhcpwire"
	"github.com/alexculea/preboot-oxide/internal/ifacebind"
	"github.com/alexculea/preboot-oxide/internal/metrics"
	"github.com/alexculea/preboot-oxide/internal/netconf"
	"github.com/alexculea/preboot-oxide/internal/poerr"
	"github.com/alexculea/preboot-oxide/internal/session"
	"go.uber.org/zap"
)

// Server is the reactor: it owns the bound sockets and the session table,
// and drives the pure Reduce function for every frame it receives. It
// performs no I/O itself under the table's lock — table.Upsert's mutator
// only builds in-memory structs (§5).
type Server struct {
	log            *zap.SugaredLogger
	table          *session.Table
	resolver       *netconf.Resolver
	tftpConfigured bool

	serverSock *ifacebind.Socket // shared wildcard socket, bound to :67
	clientSock *ifacebind.Socket // shared wildcard socket, bound to :68

	mu           sync.RWMutex
	ifaceByIndex map[int]ifacebind.Iface // keyed by kernel interface index, for RX
	ifaceIndex   map[string]int          // keyed by iface name, for TX
}

// New constructs a Server. resolver and tftpConfigured are fixed for the
// Server's lifetime and used as given for every frame it handles.
func New(log *zap.SugaredLogger, table *session.Table, resolver *netconf.Resolver, tftpConfigured bool) *Server {
	return &Server{
		log:            log,
		table:          table,
		resolver:       resolver,
		tftpConfigured: tftpConfigured,
		ifaceByIndex:   make(map[int]ifacebind.Iface),
		ifaceIndex:     make(map[string]int),
	}
}

// Serve binds one shared :67 socket and one shared :68 socket across
// every iface and runs until ctx is cancelled. Binding each port once
// rather than once per interface avoids "address already in use" on the
// second interface, since nothing in this pack sets SO_REUSEPORT before
// bind; interfaces are disambiguated via the IfIndex control message
// instead (§4.6, §9). A bind failure is returned immediately and is
// fatal to the whole process.
func (s *Server) Serve(ctx context.Context, ifaces []ifacebind.Iface) error {
	srvSock, err := ifacebind.Listen(67, true)
	if err != nil {
		return poerr.ErrBindFailed
	}
	cliSock, err := ifacebind.Listen(68, true)
	if err != nil {
		srvSock.Close()
		return poerr.ErrBindFailed
	}

	s.mu.Lock()
	s.serverSock = srvSock
	s.clientSock = cliSock
	for _, intf := range ifaces {
		s.ifaceByIndex[intf.Index] = intf
		s.ifaceIndex[intf.Name] = intf.Index
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sock := range []*ifacebind.Socket{srvSock, cliSock} {
		wg.Add(1)
		go func(sock *ifacebind.Socket) {
			defer wg.Done()
			s.listen(ctx, sock)
		}(sock)
	}

	go func() {
		<-ctx.Done()
		srvSock.Close()
		cliSock.Close()
	}()

	wg.Wait()
	return nil
}

func (s *Server) listen(ctx context.Context, sock *ifacebind.Socket) {
	buf := make([]byte, 1500)
	for {
		n, _, ifIndex, err := sock.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warnw("dhcpproxy: socket read failed", "err", err)
			return
		}

		s.mu.RLock()
		intf, ok := s.ifaceByIndex[ifIndex]
		s.mu.RUnlock()
		if !ok {
			s.log.Debugw("dhcpproxy: dropping frame from unrecognized interface", "if_index", ifIndex)
			continue
		}

		pkt, err := dhcpwire.Unmarshal(buf[:n])
		if err != nil {
			s.log.Warnw("dhcpproxy: dropping malformed frame", "iface", intf.Name, "err", err)
			continue
		}

		metrics.DHCPFramesTotal.WithLabelValues(pkt.MessageType().String()).Inc()
		s.handleFrame(pkt, RxInfo{IfaceName: intf.Name, IfaceIPv4: intf.IPv4})
	}
}

func (s *Server) handleFrame(pkt *dhcpwire.Packet, rx RxInfo) {
	var result Result
	var reduceErr error

	_, err := s.table.Upsert(pkt.XID, func(prev *session.Session) *session.Session {
		r, e := Reduce(prev, pkt, rx, time.Now(), s.resolver, s.tftpConfigured)
		result, reduceErr = r, e
		return r.Next
	})
	if err != nil {
		s.log.Warnw("dhcpproxy: session table at capacity, dropping frame", "xid", pkt.XID)
		metrics.SessionsEvictedTotal.Inc()
		return
	}

	if reduceErr != nil {
		s.log.Warnw("dhcpproxy: resolve error", "xid", pkt.XID, "err", reduceErr)
		metrics.DHCPResolveErrorsTotal.WithLabelValues(resolveErrorReason(reduceErr)).Inc()
		return
	}

	if result.Removed != nil {
		s.log.Debugw("dhcpproxy: session ended", "xid", pkt.XID, "state", result.Removed.State.String())
	}

	for _, out := range result.Out {
		s.send(out)
	}
}

func (s *Server) send(out Outbound) {
	b, err := out.Packet.Marshal()
	if err != nil {
		s.log.Errorw("dhcpproxy: failed to marshal outbound packet", "err", err)
		return
	}

	s.mu.RLock()
	ifIndex, ok := s.ifaceIndex[out.IfaceName]
	sock := s.serverSock
	s.mu.RUnlock()
	if !ok {
		s.log.Warnw("dhcpproxy: no bound interface for outbound packet", "iface", out.IfaceName)
		return
	}

	if _, err := sock.WriteTo(b, &out.Dest, ifIndex); err != nil {
		s.log.Warnw("dhcpproxy: send failed", "iface", out.IfaceName, "dest", out.Dest.String(), "err", err)
		return
	}

	metrics.DHCPProxyRepliesTotal.WithLabelValues(out.Packet.MessageType().String()).Inc()
}

func resolveErrorReason(err error) string {
	switch {
	case errors.Is(err, poerr.ErrNoBootFile):
		return "no_boot_file"
	case errors.Is(err, poerr.ErrNoTftp):
		return "no_tftp"
	default:
		return "other"
	}
}

// Reap runs one pass of the session-table TTL reaper and logs each
// removed session's diagnostic (§4.3). The caller ticks this on its own
// schedule (see internal/supervisor).
func (s *Server) Reap(now time.Time) {
	for _, r := range s.table.Reap(now) {
		s.log.Infow("dhcpproxy: session timed out", "xid", r.Session.XID, "reason", r.Reason.String())
		metrics.SessionsReapedTotal.WithLabelValues(sessionReapReasonLabel(r.Reason)).Inc()
	}
	metrics.SessionsActive.Set(float64(s.table.Len()))
}

func sessionReapReasonLabel(r session.ReapReason) string {
	switch r {
	case session.ReapMissingAuthoritativeOffer:
		return "missing_authoritative_offer"
	case session.ReapMissingClientRequest:
		return "missing_client_request"
	default:
		return "other"
	}
}
