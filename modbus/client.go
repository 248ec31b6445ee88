package modbus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/simonvetter/modbus"
)

const defaultTimeout = 2 * time.Second

// Client talks Modbus TCP to a single unit of a bench instrument and maps metrics onto its registers. The connection
// is opened on the first request, and is dropped and re-opened after any request that fails.
type Client struct {
	host    string
	unitID  uint8
	timeout time.Duration

	conn   *modbus.ModbusClient // nil while disconnected
	logger *slog.Logger
}

func NewClient(host string, unitID uint8) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("no modbus host given")
	}
	return &Client{
		host:    host,
		unitID:  unitID,
		timeout: defaultTimeout,
		logger:  slog.Default().With("host", host, "unit", unitID),
	}, nil
}

// Close closes the connection, if there is one.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// connection returns the open connection, connecting first if there is none.
func (c *Client) connection() (*modbus.ModbusClient, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	conn, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     "tcp://" + c.host,
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create modbus client: %w", err)
	}
	err = conn.Open()
	if err != nil {
		return nil, fmt.Errorf("open modbus client: %w", err)
	}
	err = conn.SetUnitId(c.unitID)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("set unit id: %w", err)
	}

	c.conn = conn
	c.logger.Info("Connected modbus client")
	return conn, nil
}

// dropConnection closes the connection after a failed request, so that the next request reconnects. Errors from the
// close are ignored as the connection is being abandoned anyway.
func (c *Client) dropConnection() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
