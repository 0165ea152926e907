package tftpserver

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/alexculea/preboot-oxide/internal/metrics"
	"github.com/alexculea/preboot-oxide/internal/tftpwire"
	"go.uber.org/zap"
)

// errAbort is returned internally to unwind a transfer after it has
// already sent its own ERROR packet or the peer sent one to us, and also
// when the client never acknowledges the OACK (no ERROR is sent in that
// case); the caller only needs to know to stop, not why, beyond logging.
var errAbort = errors.New("tftpserver: transfer aborted")

// transfer drives one RRQ to completion on its own ephemeral socket
// (§4.5 step 2, RFC 1350's TID). Blocks are numbered by a wide counter
// internally and truncated to 16 bits on the wire, so the file offset
// survives the 65535->0 rollover (§4.5 step 5, §8).
type transfer struct {
	log  *zap.SugaredLogger
	conn *net.UDPConn
	peer *net.UDPAddr

	file     *os.File
	fileSize int64
	path     string

	blkSize    int
	windowSize int
	timeout    time.Duration
}

func (t *transfer) totalBlocks() int64 {
	return t.fileSize/int64(t.blkSize) + 1
}

func (t *transfer) blockBytes(n int64) ([]byte, error) {
	full := t.fileSize / int64(t.blkSize)
	var offset int64
	var want int

	switch {
	case n <= full:
		offset = (n - 1) * int64(t.blkSize)
		want = t.blkSize
	case n == full+1:
		offset = full * int64(t.blkSize)
		want = int(t.fileSize - offset)
	default:
		return nil, nil
	}

	buf := make([]byte, want)
	if want == 0 {
		return buf, nil
	}
	_, err := t.file.ReadAt(buf, offset)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func wireBlock(n int64) uint16 { return uint16(n % 65536) }

// run drives option negotiation (if requested) and the windowed DATA loop
// to completion, then tears down the transfer (§4.5 steps 3-7).
func (t *transfer) run(ctx context.Context, oackFields map[string]string) {
	defer t.file.Close()
	defer t.conn.Close()
	metrics.TFTPTransfersActive.Inc()
	defer metrics.TFTPTransfersActive.Dec()

	if len(oackFields) > 0 {
		if err := t.negotiateBlockZero(oackFields); err != nil {
			t.finish(err)
			return
		}
	}

	err := t.streamWindows(ctx)
	t.finish(err)
}

func (t *transfer) finish(err error) {
	switch {
	case err == nil:
		t.log.Infow("tftpserver: transfer complete", "path", t.path, "peer", t.peer.String(), "bytes", t.fileSize)
		metrics.TFTPTransfersTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, errAbort):
		t.log.Warnw("tftpserver: transfer aborted", "path", t.path, "peer", t.peer.String())
		metrics.TFTPTransfersTotal.WithLabelValues("aborted").Inc()
	default:
		t.log.Warnw("tftpserver: transfer failed", "path", t.path, "peer", t.peer.String(), "err", err)
		metrics.TFTPTransfersTotal.WithLabelValues("error").Inc()
	}
}

// negotiateBlockZero sends the OACK and waits for the client's ACK of
// block 0 before any DATA is sent (§4.5 step 3). If the client instead
// sends ERROR, the transfer aborts.
func (t *transfer) negotiateBlockZero(fields map[string]string) error {
	oack := (&tftpwire.OackPacket{Options: fields}).Marshal()

	for attempt := 0; attempt <= maxRetransmits; attempt++ {
		if attempt > 0 {
			metrics.TFTPRetransmitsTotal.Inc()
		}
		if _, err := t.conn.WriteToUDP(oack, t.peer); err != nil {
			return err
		}

		op, pkt, err := t.readFrom(t.timeout)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return err
		}

		switch op {
		case tftpwire.OpACK:
			if ack, ok := pkt.(*tftpwire.AckPacket); ok && ack.Block == 0 {
				return nil
			}
		case tftpwire.OpERROR:
			return errAbort
		}
	}

	return errAbort
}

// streamWindows implements §4.5 step 5: send up to windowSize DATA blocks
// without waiting, then await the ACK of the highest outstanding block,
// retransmitting the whole window on timeout (§4.5 step 6, max 5 times).
// Cancellation or an exhausted retransmit budget sends ERROR code 0.
func (t *transfer) streamWindows(ctx context.Context) error {
	total := t.totalBlocks()
	base := int64(1)
	abort := func() error {
		e := &tftpwire.ErrorPacket{Code: tftpwire.ErrUndefined, Message: "transfer aborted"}
		t.conn.WriteToUDP(e.Marshal(), t.peer)
		return errAbort
	}

	for base <= total {
		if ctx.Err() != nil {
			return abort()
		}

		end := base + int64(t.windowSize) - 1
		if end > total {
			end = total
		}

		if err := t.sendWindow(base, end); err != nil {
			return err
		}

		retransmits := 0
		for {
			op, pkt, err := t.readFrom(t.timeout)
			if err != nil {
				if errors.Is(err, os.ErrDeadlineExceeded) {
					retransmits++
					if retransmits > maxRetransmits {
						return abort()
					}
					metrics.TFTPRetransmitsTotal.Inc()
					if err := t.sendWindow(base, end); err != nil {
						return err
					}
					continue
				}
				return err
			}

			switch op {
			case tftpwire.OpACK:
				ack, ok := pkt.(*tftpwire.AckPacket)
				if !ok {
					continue
				}
				n, matched := matchBlock(ack.Block, base, end)
				if !matched {
					continue
				}
				base = n + 1
				goto nextWindow
			case tftpwire.OpERROR:
				return errAbort
			}
		}
	nextWindow:
	}

	return nil
}

func (t *transfer) sendWindow(base, end int64) error {
	for n := base; n <= end; n++ {
		data, err := t.blockBytes(n)
		if err != nil {
			return err
		}
		pkt := &tftpwire.DataPacket{Block: wireBlock(n), Data: data}
		if _, err := t.conn.WriteToUDP(pkt.Marshal(), t.peer); err != nil {
			return err
		}
		metrics.TFTPBytesSentTotal.Add(float64(len(data)))
	}
	return nil
}

func matchBlock(ackBlock uint16, base, end int64) (int64, bool) {
	for n := base; n <= end; n++ {
		if wireBlock(n) == ackBlock {
			return n, true
		}
	}
	return 0, false
}

func (t *transfer) readFrom(timeout time.Duration) (tftpwire.Opcode, interface{}, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, nil, err
	}
	buf := make([]byte, 1500)
	n, addr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, err
	}
	if !addr.IP.Equal(t.peer.IP) || addr.Port != t.peer.Port {
		// Stray datagram from a different source; ignore it without
		// consuming the retransmit budget.
		return t.readFrom(timeout)
	}
	return tftpwire.Decode(buf[:n])
}
