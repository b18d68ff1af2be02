package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/filewarden/mesh/internal/protocol"
	"github.com/filewarden/mesh/pkg/logger"
)

// Client owns the single TCP connection to the master: dial,
// register, framed read/write, and reconnect-with-backoff. Adapted
// from the teacher's codex transport (dial + exponential-backoff
// reconnect + heartbeat loop), ported from WebSocket framing to this
// domain's raw length-prefixed TCP.
type Client struct {
	masterAddr     string
	clientID       string
	reconnectDelay time.Duration
	readTimeout    time.Duration

	conn   net.Conn
	writer *protocol.FrameWriter
}

// NewClient creates a Client that will dial host:port.
func NewClient(masterIP string, masterPort int, clientID string, reconnectDelay, readTimeout time.Duration) *Client {
	return &Client{
		masterAddr:     net.JoinHostPort(masterIP, strconv.Itoa(masterPort)),
		clientID:       clientID,
		reconnectDelay: reconnectDelay,
		readTimeout:    readTimeout,
	}
}

// Connected reports whether a live connection is currently held.
func (c *Client) Connected() bool { return c.conn != nil }

// Connect dials the master once and sends the register frame. Returns
// the dial/register error without retrying — callers loop with
// DialUntilConnected for the retry-with-backoff behavior.
func (c *Client) Connect() error {
	conn, err := net.DialTimeout("tcp", c.masterAddr, 10*time.Second)
	if err != nil {
		return err
	}

	c.conn = conn
	c.writer = protocol.NewFrameWriter(conn)

	reg := protocol.Register{
		Type:      protocol.TypeRegister,
		ClientID:  c.clientID,
		Timestamp: nowISO(),
	}
	if err := c.writer.Write(reg); err != nil {
		conn.Close()
		c.conn = nil
		return err
	}

	logger.Infow("agent: connected to master", "master_addr", c.masterAddr)
	return nil
}

// DialUntilConnected retries Connect with the configured delay between
// attempts until it succeeds or ctx is cancelled.
func (c *Client) DialUntilConnected(ctx context.Context) error {
	for {
		if err := c.Connect(); err == nil {
			return nil
		} else {
			logger.Warnw("agent: connect failed, retrying", logger.FieldError, err, "delay", c.reconnectDelay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

// Disconnect closes the live connection, if any.
func (c *Client) Disconnect() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// SendHeartbeat sends a heartbeat frame.
func (c *Client) SendHeartbeat() error {
	return c.writer.Write(protocol.Heartbeat{Type: protocol.TypeHeartbeat, ClientID: c.clientID, Timestamp: nowISO()})
}

// SendScanResults sends the scanned/quarantined files for one task.
func (c *Client) SendScanResults(taskID string, files []protocol.ScannedFile) error {
	return c.writer.Write(protocol.ScanResults{
		Type: protocol.TypeScanResults, TaskID: taskID, ClientID: c.clientID,
		Timestamp: nowISO(), Files: files,
	})
}

// SendDeletionReport sends the outcome of an approved deletion batch.
func (c *Client) SendDeletionReport(taskID string, reports []protocol.DeletionOutcome) error {
	return c.writer.Write(protocol.DeletionReport{
		Type: protocol.TypeDeletionReport, TaskID: taskID, ClientID: c.clientID,
		Timestamp: nowISO(), Reports: reports,
	})
}

// ReceiveMessage reads one frame, applying readTimeout as the socket
// deadline. Returns (nil, nil, nil) on a read timeout so the caller's
// main loop can poll other state (matching the original's 5s-timeout
// receive_message loop), and (nil, nil, err) on any other read failure.
// The returned envelope carries only the "type" tag; callers re-decode
// raw into the matching concrete message once they know the type.
func (c *Client) ReceiveMessage() (*protocol.Envelope, []byte, error) {
	if c.conn == nil {
		return nil, nil, net.ErrClosed
	}
	c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))

	raw, err := protocol.ReadRawFrame(c.conn)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, err
	}
	return &env, raw, nil
}

func nowISO() string {
	return time.Now().Local().Format(time.RFC3339Nano)
}
