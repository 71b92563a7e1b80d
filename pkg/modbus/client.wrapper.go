// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package modbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	wrapper "github.com/grid-x/modbus"

	"watches/pkg/logger"
)

// registerIO is the subset of the grid-x client the wrapper uses.
type registerIO interface {
	ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(ctx context.Context, address, quantity uint16, value []byte) ([]byte, error)
	ReadCoils(ctx context.Context, address, quantity uint16) ([]byte, error)
	WriteSingleCoil(ctx context.Context, address, value uint16) ([]byte, error)
}

type Client struct {
	mu      sync.Mutex
	handler *wrapper.TCPClientHandler
	client  registerIO
	config  *Config
	log     *logger.Logger

	// replaced in tests
	dial func(ctx context.Context) error
}

// NewClient connects to the device, retrying with backoff until ctx is done.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	c := &Client{
		config: config,
		log:    logger.New("ModbusConn"),
	}
	c.dial = c.connect
	if err := c.connectWithRetry(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newClientWithIO(config *Config, io registerIO) *Client {
	c := &Client{
		config: config,
		client: io,
		log:    logger.New("ModbusConn"),
	}
	c.dial = func(context.Context) error { return nil }
	return c
}

func (c *Client) connectWithRetry(ctx context.Context) error {
	backoff := time.Second
	for {
		err := c.dial(ctx)
		if err == nil {
			return nil
		}
		c.log.Error("Modbus connect failed: %v (retrying in %v)", err, backoff)

		select {
		case <-ctx.Done():
			return fmt.Errorf("modbus connect: %w", ctx.Err())
		case <-time.After(backoff):
		}

		// exponential backoff up to 30 seconds
		backoff = min(backoff*2, 30*time.Second)
	}
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler != nil {
		_ = c.handler.Close()
	}

	addr := c.config.Addr()
	handler := wrapper.NewTCPClientHandler(addr)
	handler.SlaveID = c.config.SlaveID
	handler.Timeout = time.Second * time.Duration(max(c.config.TimeoutSeconds, 1))
	handler.ProtocolRecoveryTimeout = 250 * time.Millisecond
	handler.LinkRecoveryTimeout = 5 * time.Second

	c.log.Info("Connecting to %s...", addr)
	if err := handler.Connect(ctx); err != nil {
		return fmt.Errorf("modbus connect failed: %w", err)
	}

	c.handler = handler
	c.client = wrapper.NewClient(handler)
	c.log.Info("Connected to %s", addr)
	return nil
}

// retry runs op, reconnecting once if the failure looks like a dead link.
func (c *Client) retry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !isConnError(err) {
		return err
	}

	c.log.Error("connection error: %v, reconnecting...", err)
	if rerr := c.connectWithRetry(ctx); rerr != nil {
		return errors.Join(err, rerr)
	}
	return op()
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		_ = c.handler.Close()
		c.handler = nil
	}
}

func isConnError(err error) bool {
	if err == nil {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "closed by the remote host") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection refused")
}
