// Package oscin accepts scenario triggers over OSC
package oscin

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/hypebeast/go-osc/osc"
	"github.com/rs/zerolog"
)

// DefaultAddress is the UDP address the OSC input listens on
const DefaultAddress = "127.0.0.1:8765"

// NoteAddress triggers the scenario mapped to the note in the first argument
const NoteAddress = "/midi2atem/note"

var ErrBadArgument = errors.New("oscin: expected a note number argument")

// Server receives OSC messages and forwards note triggers
type Server struct {
	conn       net.PacketConn
	submit     func(note uint8) bool
	log        zerolog.Logger
	dispatcher *osc.StandardDispatcher
}

// Listen binds addr. submit is called for every valid trigger.
func Listen(addr string, submit func(note uint8) bool, log zerolog.Logger) (*Server, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for OSC on %s: %w", addr, err)
	}

	s := &Server{conn: conn, submit: submit, log: log, dispatcher: osc.NewStandardDispatcher()}
	if err := s.dispatcher.AddMsgHandler(NoteAddress, s.handle); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Serve handles messages until ctx is done. Malformed packets are logged
// and skipped.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	s.log.Info().Str("address", s.Addr().String()).Str("path", NoteAddress).Msg("OSC input listening")
	srv := &osc.Server{Dispatcher: s.dispatcher}
	for {
		err := srv.Serve(s.conn)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || errors.Is(err, net.ErrClosed) {
			return err
		}
		s.log.Warn().Err(err).Msg("Ignoring OSC packet")
	}
}

func (s *Server) handle(msg *osc.Message) {
	note, err := noteArgument(msg.Arguments)
	if err != nil {
		s.log.Warn().Err(err).Str("path", msg.Address).Msg("Ignoring OSC message")
		return
	}
	s.log.Debug().Uint8("note", note).Msg("OSC trigger")
	if !s.submit(note) {
		s.log.Warn().Uint8("note", note).Msg("OSC trigger dropped")
	}
}

func noteArgument(args []interface{}) (uint8, error) {
	if len(args) == 0 {
		return 0, ErrBadArgument
	}
	var n int64
	switch v := args[0].(type) {
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float32:
		n = int64(v)
	case float64:
		n = int64(v)
	default:
		return 0, fmt.Errorf("%w, got %T", ErrBadArgument, args[0])
	}
	if n < 0 || n > 127 {
		return 0, fmt.Errorf("%w, %d out of range", ErrBadArgument, n)
	}
	return uint8(n), nil
}
