/*
Package com implements the AT command channel to a GSM modem. It sends one command at a time, collects the
response lines until the final result code, and dispatches unsolicited result codes (like incoming cell
broadcast messages) to registered indication handlers.
*/
package com

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	readBufferSize        = 1024
	atSendingQueueTimeout = 500 * time.Millisecond
	resetRetryInterval    = 200 * time.Millisecond
)

var (
	// ErrQueueTimeout indicates that a command could not be sent because the previous command is still active.
	ErrQueueTimeout = errors.New("AT sending queue timeout")
	// ErrClosed indicates that the device was closed.
	ErrClosed = errors.New("device closed")
)

// CommandError is the final result code of a failed command.
type CommandError struct {
	Request string
	Result  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Request, e.Result)
}

// CMEError returns the numeric +CME ERROR code, or -1 if the result is no +CME ERROR.
func (e *CommandError) CMEError() int {
	var code int
	_, err := fmt.Sscanf(strings.ToUpper(e.Result), "+CME ERROR: %d", &code)
	if err != nil {
		return -1
	}
	return code
}

// IndicationHandler is called with all lines of an unsolicited result code. It runs on its own goroutine and
// must not send AT commands synchronously, the reader loop does not wait for it.
type IndicationHandler func(lines []string)

// COM allows to communicate with a GSM modem using AT commands.
type COM struct {
	commands chan command
	closed   chan struct{}
	log      zerolog.Logger

	indicationsLock sync.RWMutex
	indications     map[string]indicationConfig
}

// Option configures a COM instance.
type Option func(*COM)

// WithLogger traces all communication on the trace level of the given logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *COM) {
		c.log = log
	}
}

// New creates a new COM instance using the given io.ReadWriter to communicate with the modem.
func New(device io.ReadWriter, options ...Option) *COM {
	result := &COM{
		commands:    make(chan command),
		closed:      make(chan struct{}),
		log:         zerolog.Nop(),
		indications: make(map[string]indicationConfig),
	}
	for _, option := range options {
		option(result)
	}

	go result.run(device, readLoop(device))

	return result
}

func (c *COM) run(device io.Writer, lines <-chan string) {
	c.log.Trace().Msg("session start")
	defer c.log.Trace().Msg("session end")
	defer close(c.closed)

	var commandCancelled <-chan struct{}
	var activeCommand *command
	var activeIndication *indication
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case line, valid := <-lines:
			if !valid {
				if activeCommand != nil {
					activeCommand.fail(ErrClosed)
				}
				return
			}
			c.log.Trace().Str("rx", line).Msg("")

			switch {
			case activeIndication != nil:
				activeIndication.AddLine(line)
				if activeIndication.Complete() {
					activeIndication = nil
				}
			case activeCommand != nil:
				if !activeCommand.IsResponse(line) {
					activeIndication = c.newIndication(line)
				}
				if activeIndication != nil {
					break
				}
				activeCommand.AddLine(line)
				if activeCommand.Complete() {
					commandCancelled = nil
					activeCommand = nil
				}
			default:
				activeIndication = c.newIndication(line)
			}
		case <-commandCancelled:
			commandCancelled = nil
			activeCommand = nil
		case <-tick.C:
		}

		if activeCommand != nil {
			continue
		}
		select {
		case cmd := <-c.commands:
			if len(cmd.request) == 0 {
				break
			}
			txbytes := encodeRequest(cmd.request)
			c.log.Trace().Str("tx", strings.TrimSpace(string(txbytes))).Msg("")
			_, err := device.Write(txbytes)
			if err != nil {
				cmd.fail(err)
				break
			}
			commandCancelled = cmd.cancelled
			activeCommand = &cmd
		default:
		}
	}
}

// encodeRequest terminates the request with CR LF, unless it already ends with CTRL-Z or ESC.
func encodeRequest(request string) []byte {
	result := make([]byte, 0, len(request)+2)
	result = append(result, request...)
	last := result[len(result)-1]
	if last != 0x1a && last != 0x1b {
		result = append(result, 0x0d, 0x0a)
	}
	return result
}

func readLoop(r io.Reader) <-chan string {
	lines := make(chan string, 1)
	go func() {
		defer close(lines)
		buf := make([]byte, readBufferSize)
		currentLine := make([]byte, 0, readBufferSize)
		for {
			n, err := r.Read(buf)
			if err != nil {
				if len(currentLine) > 0 {
					lines <- string(currentLine)
				}
				return
			}

			for _, b := range buf[0:n] {
				switch {
				case b == '\n':
					if len(currentLine) == 0 {
						continue
					}
					lines <- string(currentLine)
					currentLine = currentLine[:0]
				case b < ' ':
					continue
				default:
					currentLine = append(currentLine, b)
				}
			}
		}
	}()
	return lines
}

// Closed reports whether the device was closed.
func (c *COM) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Done is closed when the device was closed.
func (c *COM) Done() <-chan struct{} {
	return c.closed
}

// AddIndication registers the handler for unsolicited result codes that start with the given prefix. The
// indication consists of the line with the prefix and the given number of trailing lines. Single line indications
// are handled in order on the reading goroutine, so their handler must neither block nor send commands.
func (c *COM) AddIndication(prefix string, trailingLines int, handler IndicationHandler) {
	config := indicationConfig{
		prefix:        strings.ToUpper(prefix),
		trailingLines: trailingLines,
		handler:       handler,
	}
	c.indicationsLock.Lock()
	defer c.indicationsLock.Unlock()
	c.indications[config.prefix] = config
}

func (c *COM) newIndication(line string) *indication {
	c.indicationsLock.RLock()
	defer c.indicationsLock.RUnlock()
	for _, config := range c.indications {
		result := config.NewIfMatches(line)
		if result != nil {
			return result
		}
	}
	return nil
}

// Reset sends AT until the modem answers with OK. The modem may answer with a syntax error (+CME ERROR: 35)
// while it still receives garbage from a previous session.
func (c *COM) Reset(ctx context.Context) error {
	for {
		_, err := c.AT(ctx, "AT")
		if err == nil {
			return nil
		}
		var commandErr *CommandError
		if !errors.As(err, &commandErr) || commandErr.CMEError() != 35 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resetRetryInterval):
		}
	}
}

// AT sends the given request and returns the response lines without the final result code.
func (c *COM) AT(ctx context.Context, request string) ([]string, error) {
	cmd := command{
		request:   request,
		response:  make(chan []string, 1),
		err:       make(chan error, 1),
		cancelled: ctx.Done(),
		completed: make(chan struct{}),
	}

	select {
	case c.commands <- cmd:
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(atSendingQueueTimeout):
		return nil, ErrQueueTimeout
	}

	select {
	case response := <-cmd.response:
		return response, nil
	case err := <-cmd.err:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ATs sends all given requests in sequence and stops at the first failure.
func (c *COM) ATs(ctx context.Context, requests ...string) error {
	for _, request := range requests {
		_, err := c.AT(ctx, request)
		if err != nil {
			return fmt.Errorf("%s failed: %w", request, err)
		}
	}
	return nil
}

type indicationConfig struct {
	prefix        string
	trailingLines int
	handler       IndicationHandler
}

func (c *indicationConfig) NewIfMatches(line string) *indication {
	if !strings.HasPrefix(strings.ToUpper(line), c.prefix) {
		return nil
	}
	result := &indication{
		config: *c,
		lines:  []string{line},
	}
	if result.Complete() {
		c.handler([]string{line})
		return nil
	}

	return result
}

type indication struct {
	config indicationConfig
	lines  []string
}

func (ind *indication) AddLine(line string) {
	if ind.Complete() {
		return
	}

	ind.lines = append(ind.lines, line)
	if ind.Complete() {
		go ind.config.handler(ind.lines)
	}
}

func (ind *indication) Complete() bool {
	return len(ind.lines) >= ind.config.trailingLines+1
}

type command struct {
	lines     []string
	request   string
	response  chan []string
	err       chan error
	cancelled <-chan struct{}
	completed chan struct{}
}

func (c *command) AddLine(line string) {
	if c.Complete() {
		return
	}

	saniLine := strings.TrimSpace(strings.ToUpper(line))
	switch {
	case saniLine == "OK":
		c.response <- c.lines
		close(c.completed)
	case strings.HasPrefix(saniLine, "ERROR"),
		strings.HasPrefix(saniLine, "+CME ERROR:"),
		strings.HasPrefix(saniLine, "+CMS ERROR"):
		c.fail(&CommandError{Request: c.request, Result: line})
	default:
		c.lines = append(c.lines, line)
	}
}

// IsResponse reports whether the line carries the prefix of this command's information response, like
// +CREG: for AT+CREG?. Such lines belong to the command even if an indication uses the same prefix.
func (c *command) IsResponse(line string) bool {
	prefix := responsePrefix(c.request)
	return prefix != "" && strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), prefix)
}

func responsePrefix(request string) string {
	request = strings.ToUpper(strings.TrimSpace(request))
	if !strings.HasPrefix(request, "AT+") {
		return ""
	}
	name := request[2:]
	if i := strings.IndexAny(name, "?="); i >= 0 {
		name = name[:i]
	}
	if len(name) < 2 {
		return ""
	}
	return name + ":"
}

func (c *command) fail(err error) {
	c.err <- err
	close(c.completed)
}

func (c *command) Complete() bool {
	select {
	case <-c.cancelled:
		return true
	case <-c.completed:
		return true
	default:
		return false
	}
}
