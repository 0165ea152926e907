// Package supervisor wires the DHCP-proxy and TFTP servers to a shared set
// of interfaces and runs them to completion, plus the session-table
// reaper ticking on its own schedule (§4.3, §4.6). This is the process's
// top-level run loop; cmd/preboot-oxide only builds the config and calls
// into it.
package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/alexculea/preboot-oxide/internal/dhcpproxy"
	"github.com/alexculea/preboot-oxide/internal/ifacebind"
	"github.com/alexculea/preboot-oxide/internal/netconf"
	"github.com/alexculea/preboot-oxide/internal/session"
	"github.com/alexculea/preboot-oxide/internal/tftpserver"
	"go.uber.org/zap"
)

// ReapInterval is how often the session table's TTL reaper runs (§4.3).
const ReapInterval = netconf.ReapInterval * time.Second

var errNoUsableInterfaces = errors.New("supervisor: no usable network interfaces")

// Config is the resolved, ready-to-run configuration supervisor.Run needs.
// cmd/preboot-oxide builds this from netconf.Load's output.
type Config struct {
	Ifaces         []string
	MaxSessions    int
	TftpServerDir  string // empty disables the local TFTP server (§4.6)
	Resolver       *netconf.Resolver
	TftpConfigured bool // whether boot_server_ipv4 or a local dir makes TFTP reachable at all
}

// Run binds every listener, starts the reaper, and blocks until ctx is
// cancelled or a listener fails to bind. A bind failure on any interface
// is fatal to the whole process (§4.6, §7): Run returns promptly and the
// caller is expected to exit non-zero.
func Run(ctx context.Context, log *zap.SugaredLogger, cfg Config) error {
	ifaces, err := ifacebind.Enumerate(cfg.Ifaces)
	if err != nil {
		return err
	}
	if len(ifaces) == 0 {
		return errNoUsableInterfaces
	}

	table := session.New(cfg.MaxSessions)
	dhcpSrv := dhcpproxy.New(log, table, cfg.Resolver, cfg.TftpConfigured)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- dhcpSrv.Serve(ctx, ifaces)
	}()

	if cfg.TftpServerDir != "" {
		tftpSrv := tftpserver.New(log, cfg.TftpServerDir)
		go func() {
			errs <- tftpSrv.Serve(ctx, ifaces)
		}()
	} else {
		log.Infow("supervisor: local tftp server disabled, no tftp_server_dir configured")
	}

	go runReaper(ctx, dhcpSrv)

	select {
	case err := <-errs:
		cancel()
		return err
	case <-ctx.Done():
		return nil
	}
}

func runReaper(ctx context.Context, dhcpSrv *dhcpproxy.Server) {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dhcpSrv.Reap(now)
		}
	}
}
