// Package query asks a DayZ server for its rules over the Source A2S
// protocol and decodes the mod list DayZ packs into binary rules.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/HendryAvila/modwatch/internal/mods"
)

// DefaultTimeout bounds a whole query when the context carries no deadline.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is wrapped by QueryError when the server did not answer in time.
var ErrTimeout = errors.New("query timed out")

// QueryError reports a failed server query.
type QueryError struct {
	Addr string
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("querying %s: %v", e.Addr, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Timeout reports whether the query failed because the server was silent.
func (e *QueryError) Timeout() bool { return errors.Is(e.Err, ErrTimeout) }

// Client queries DayZ servers.
type Client struct {
	Timeout time.Duration
	logger  *slog.Logger
}

// New creates a query client. A zero timeout uses DefaultTimeout.
func New(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Timeout: timeout, logger: logger}
}

// Query returns the server's metadata and active mod list.
func (c *Client) Query(ctx context.Context, host string, port int) (mods.ServerInfo, []mods.ModRef, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	raw, err := c.rules(ctx, addr)
	if err != nil {
		return mods.ServerInfo{}, nil, &QueryError{Addr: addr, Err: err}
	}

	rs, err := decodeRules(raw)
	if err != nil {
		return mods.ServerInfo{}, nil, &QueryError{Addr: addr, Err: err}
	}

	c.logger.Debug("queried server",
		"addr", addr,
		"platform", rs.info.Platform,
		"island", rs.info.Island,
		"mods", len(rs.mods),
	)
	return rs.info, rs.mods, nil
}

// rules performs the challenge handshake and returns the raw rules payload
// (after the 0x45 type byte).
func (c *Client) rules(ctx context.Context, addr string) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	challenge := noChallenge
	for attempt := 0; attempt < maxChallengeRounds; attempt++ {
		if _, err := conn.Write(rulesRequest(challenge)); err != nil {
			return nil, classify(ctx, fmt.Errorf("send: %w", err))
		}

		payload, err := readResponse(conn)
		if err != nil {
			return nil, classify(ctx, err)
		}
		if len(payload) == 0 {
			return nil, errors.New("empty response")
		}

		switch payload[0] {
		case typeChallenge:
			if len(payload) < 5 {
				return nil, errors.New("short challenge response")
			}
			challenge = [4]byte{payload[1], payload[2], payload[3], payload[4]}
		case typeRules:
			return payload[1:], nil
		default:
			return nil, fmt.Errorf("unexpected response type 0x%02x", payload[0])
		}
	}
	return nil, errors.New("server kept issuing challenges")
}

// classify maps deadline failures onto ErrTimeout.
func classify(ctx context.Context, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
