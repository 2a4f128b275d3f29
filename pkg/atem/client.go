package atem

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Client defaults
const (
	DefaultPort           = 9910
	DefaultConnectTimeout = 2 * time.Second
)

var (
	ErrNotConnected = errors.New("atem: not connected")
	ErrTimeout      = errors.New("atem: connection timed out")
	ErrClosed       = errors.New("atem: session ended")
)

// Device is one switcher session. Connect blocks for the lifetime of the
// session and returns once it ends or Close is called.
type Device interface {
	Connect()
	Close()
	Model() string
	ProgramInput(me int) VideoSource
	PreviewInput(me int) VideoSource
	AuxSource(aux int) VideoSource
	Inputs() []InputProperties
	SetProgramInput(me int, src VideoSource)
	SetPreviewInput(me int, src VideoSource)
	SetAuxSource(aux int, src VideoSource)
}

// Dialer creates a device for host:port. onConnect is called once the
// switcher finished sending its initial state.
type Dialer func(host string, port int, debug bool, onConnect func()) Device

// Handlers are optional hooks. They must not block.
type Handlers struct {
	ConnectAttempt func(c *Client)
	Connect        func(c *Client)
	Disconnect     func(c *Client)
}

// Option configures a Client
type Option func(*Client)

// WithName sets the display name used in logs and by the bridge
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithLogger sets the logger for session diagnostics
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithHandlers registers connection hooks
func WithHandlers(h Handlers) Option {
	return func(c *Client) { c.handlers = h }
}

// WithConnectTimeout bounds the wait for the initial state
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithDebug makes go-atem print its protocol traffic
func WithDebug(debug bool) Option {
	return func(c *Client) { c.debug = debug }
}

// WithDialer replaces the go-atem device
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// Client is a session with one switcher
type Client struct {
	name           string
	addr           string
	host           string
	port           int
	debug          bool
	connectTimeout time.Duration
	handlers       Handlers
	dial           Dialer
	log            zerolog.Logger

	mu  sync.RWMutex
	dev Device
}

// New creates a client for the switcher at addr ("host" or "host:port")
func New(addr string, opts ...Option) *Client {
	host, port := splitAddr(addr)
	c := &Client{
		name:           addr,
		addr:           addr,
		host:           host,
		port:           port,
		connectTimeout: DefaultConnectTimeout,
		dial:           dialLibrary,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("switcher", c.name).Logger()
	return c
}

func splitAddr(addr string) (string, int) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, DefaultPort
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return host, DefaultPort
	}
	return host, port
}

// Name returns the display name
func (c *Client) Name() string {
	return c.name
}

// Addr returns the address the client was created with
func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) device() Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dev
}

// Connected reports whether the session is established
func (c *Client) Connected() bool {
	return c.device() != nil
}

// Model returns the product name reported by the switcher
func (c *Client) Model() string {
	if d := c.device(); d != nil {
		return d.Model()
	}
	return ""
}

// ProgramInput returns the program source of an M/E
func (c *Client) ProgramInput(me int) (VideoSource, bool) {
	if d := c.device(); d != nil {
		return d.ProgramInput(me), true
	}
	return 0, false
}

// PreviewInput returns the preview source of an M/E
func (c *Client) PreviewInput(me int) (VideoSource, bool) {
	if d := c.device(); d != nil {
		return d.PreviewInput(me), true
	}
	return 0, false
}

// AuxSource returns the source routed to an aux output
func (c *Client) AuxSource(aux int) (VideoSource, bool) {
	if d := c.device(); d != nil {
		return d.AuxSource(aux), true
	}
	return 0, false
}

// Inputs returns the announced inputs ordered by source
func (c *Client) Inputs() []InputProperties {
	d := c.device()
	if d == nil {
		return nil
	}
	inputs := d.Inputs()
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Source < inputs[j].Source })
	return inputs
}

// SetProgramInput switches the program bus of an M/E
func (c *Client) SetProgramInput(me int, src VideoSource) error {
	d := c.device()
	if d == nil {
		return ErrNotConnected
	}
	d.SetProgramInput(me, src)
	return nil
}

// SetPreviewInput switches the preview bus of an M/E
func (c *Client) SetPreviewInput(me int, src VideoSource) error {
	d := c.device()
	if d == nil {
		return ErrNotConnected
	}
	d.SetPreviewInput(me, src)
	return nil
}

// SetAuxSource routes a source to an aux output
func (c *Client) SetAuxSource(aux int, src VideoSource) error {
	d := c.device()
	if d == nil {
		return ErrNotConnected
	}
	d.SetAuxSource(aux, src)
	return nil
}

// Connect starts a session and waits until the switcher reported its
// initial state, the connect timeout passed or ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	if c.Connected() {
		return nil
	}
	if h := c.handlers.ConnectAttempt; h != nil {
		h(c)
	}

	ready := make(chan struct{})
	var once sync.Once
	dev := c.dial(c.host, c.port, c.debug, func() {
		once.Do(func() { close(ready) })
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		dev.Connect()
	}()

	timer := time.NewTimer(c.connectTimeout)
	defer timer.Stop()

	select {
	case <-ready:
	case <-done:
		return fmt.Errorf("%w before %s:%d answered", ErrClosed, c.host, c.port)
	case <-timer.C:
		dev.Close()
		return fmt.Errorf("%w: no initial state from %s:%d", ErrTimeout, c.host, c.port)
	case <-ctx.Done():
		dev.Close()
		return ctx.Err()
	}

	c.mu.Lock()
	c.dev = dev
	c.mu.Unlock()
	go c.watch(dev, done)

	c.log.Debug().Str("model", dev.Model()).Msg("session established")
	if h := c.handlers.Connect; h != nil {
		h(c)
	}
	return nil
}

// watch reports a session that ended without Disconnect
func (c *Client) watch(dev Device, done <-chan struct{}) {
	<-done
	if !c.release(dev) {
		return
	}
	c.log.Warn().Msg("session ended")
	if h := c.handlers.Disconnect; h != nil {
		h(c)
	}
}

// release forgets dev and reports whether it was the current session
func (c *Client) release(dev Device) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != dev {
		return false
	}
	c.dev = nil
	return true
}

// Disconnect closes the session. It is safe to call on a closed client.
func (c *Client) Disconnect() error {
	dev := c.device()
	if dev == nil || !c.release(dev) {
		return nil
	}
	dev.Close()
	if h := c.handlers.Disconnect; h != nil {
		h(c)
	}
	return nil
}
