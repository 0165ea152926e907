package tftpserver

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/alexculea/preboot-oxide/internal/ifacebind"
	"github.com/alexculea/preboot-oxide/internal/poerr"
	"github.com/alexculea/preboot-oxide/internal/tftpwire"
	"go.uber.org/zap"
)

// Server is the RRQ-only TFTP listener (§4.5 step 1): a single shared,
// wildcard :69 socket across every interface, dispatching each valid
// request to its own transfer on a fresh ephemeral socket so concurrent
// clients never share a TID.
type Server struct {
	log  *zap.SugaredLogger
	root string

	mu           sync.RWMutex
	ifaceByIndex map[int]ifacebind.Iface
}

// New constructs a Server rooted at root, the directory boot files are
// served from (§4.5 step 1).
func New(log *zap.SugaredLogger, root string) *Server {
	return &Server{log: log, root: root, ifaceByIndex: make(map[int]ifacebind.Iface)}
}

// Serve binds a single shared port 69 socket across every iface and runs
// until ctx is cancelled. Binding once rather than once per interface
// avoids "address already in use" on the second interface, since
// nothing in this pack sets SO_REUSEPORT before bind; interfaces are
// disambiguated via the IfIndex control message instead (§4.6, §9). A
// bind failure is fatal to the process, mirroring dhcpproxy.Server.Serve.
func (s *Server) Serve(ctx context.Context, ifaces []ifacebind.Iface) error {
	sock, err := ifacebind.Listen(69, false)
	if err != nil {
		return poerr.ErrBindFailed
	}

	s.mu.Lock()
	for _, intf := range ifaces {
		s.ifaceByIndex[intf.Index] = intf
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		sock.Close()
	}()

	s.listen(ctx, sock)
	return nil
}

func (s *Server) listen(ctx context.Context, sock *ifacebind.Socket) {
	buf := make([]byte, 1500)
	for {
		n, addr, ifIndex, err := sock.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warnw("tftpserver: socket read failed", "err", err)
			return
		}

		s.mu.RLock()
		intf, ok := s.ifaceByIndex[ifIndex]
		s.mu.RUnlock()
		if !ok {
			s.log.Debugw("tftpserver: dropping request from unrecognized interface", "if_index", ifIndex)
			continue
		}

		op, pkt, err := tftpwire.Decode(buf[:n])
		if err != nil {
			s.log.Debugw("tftpserver: dropping malformed frame", "iface", intf.Name, "peer", addr, "err", err)
			continue
		}

		go s.handleRequest(ctx, intf, op, pkt, addr)
	}
}

// handleRequest validates the request and, if it's a servable RRQ, opens a
// fresh ephemeral socket bound to the same interface IP and runs the
// transfer to completion. WRQ is rejected (§4.5 step 1: read-only).
func (s *Server) handleRequest(ctx context.Context, intf ifacebind.Iface, op tftpwire.Opcode, pkt interface{}, peer *net.UDPAddr) {
	req, ok := pkt.(*tftpwire.RequestPacket)
	if !ok {
		return
	}

	switch op {
	case tftpwire.OpWRQ:
		s.sendError(intf, peer, tftpwire.ErrAccessViolation, "read-only server")
		return
	case tftpwire.OpRRQ:
	default:
		return
	}

	if req.Mode != tftpwire.ModeOctet {
		s.sendError(intf, peer, tftpwire.ErrIllegalOp, "only octet mode is supported")
		return
	}

	f, size, err := openFile(s.root, req.Filename)
	if err != nil {
		s.log.Debugw("tftpserver: rejecting request", "iface", intf.Name, "peer", peer, "file", req.Filename, "err", err)
		if errors.Is(err, poerr.ErrPathEscape) {
			s.sendError(intf, peer, tftpwire.ErrAccessViolation, "path escapes tftp root")
		} else {
			s.sendError(intf, peer, tftpwire.ErrFileNotFound, "file not found")
		}
		return
	}

	opts := negotiateOptions(req.Options, size)

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: intf.IPv4})
	if err != nil {
		f.Close()
		s.log.Warnw("tftpserver: failed to open ephemeral socket", "iface", intf.Name, "err", err)
		return
	}

	t := &transfer{
		log:        s.log,
		conn:       conn,
		peer:       peer,
		file:       f,
		fileSize:   size,
		path:       req.Filename,
		blkSize:    opts.blkSize,
		windowSize: opts.windowSize,
		timeout:    opts.timeout,
	}
	t.run(ctx, opts.oackFields)
}

func (s *Server) sendError(intf ifacebind.Iface, peer *net.UDPAddr, code uint16, msg string) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: intf.IPv4})
	if err != nil {
		return
	}
	defer conn.Close()

	e := &tftpwire.ErrorPacket{Code: code, Message: msg}
	if _, err := conn.WriteToUDP(e.Marshal(), peer); err != nil {
		s.log.Debugw("tftpserver: failed to send ERROR", "peer", peer, "err", err)
	}
}
