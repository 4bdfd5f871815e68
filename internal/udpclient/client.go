// Package udpclient is a thin sender for the collection service's datagram
// protocol: control commands as CMD|<name>, log records as <source>|<body>.
// Sends are fire-and-forget; the transport offers no acknowledgment.
package udpclient

import (
	"fmt"
	"net"

	"go.uber.org/zap"
)

// CommandPrefix frames control directives on the wire.
const CommandPrefix = "CMD"

// Session boundary commands understood by the collection service.
const (
	CmdNewSession = "NEW_SESSION"
	CmdEndSession = "END_SESSION"
)

const sendBufferBytes = 64 << 10

// Client sends datagrams to one fixed destination. A single Client is safe
// for concurrent use: each send is one complete write on the shared socket.
type Client struct {
	conn   *net.UDPConn
	addr   string
	logger *zap.Logger
}

// Dial connects a client to the collection endpoint.
func Dial(addr string, logger *zap.Logger) (*Client, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	// A generous send buffer keeps burst load from stalling on the local
	// socket before it ever reaches the network.
	if err := conn.SetWriteBuffer(sendBufferBytes); err != nil {
		logger.Warn("set write buffer", zap.Error(err))
	}
	return &Client{conn: conn, addr: addr, logger: logger}, nil
}

// Addr returns the destination address.
func (c *Client) Addr() string {
	return c.addr
}

// SendCommand transmits one control directive.
func (c *Client) SendCommand(name string) error {
	return c.send(fmt.Sprintf("%s|%s", CommandPrefix, name))
}

// SendMessage transmits one log record from the given source.
func (c *Client) SendMessage(source, body string) error {
	return c.send(fmt.Sprintf("%s|%s", source, body))
}

func (c *Client) send(payload string) error {
	if _, err := c.conn.Write([]byte(payload)); err != nil {
		c.logger.Warn("udp send failed",
			zap.String("addr", c.addr),
			zap.Int("bytes", len(payload)),
			zap.Error(err))
		return fmt.Errorf("send to %s: %w", c.addr, err)
	}
	return nil
}

// Close releases the socket.
func (c *Client) Close() error {
	return c.conn.Close()
}
