package main

import (
	"context"
	"net"
	"os"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/config"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/transport/loopback"
	"github.com/wippyai/binderkit/transport/stream"
)

// session is a server and a client Process joined by the configured
// transport.
type session struct {
	server *binder.Process
	client *binder.Process

	// kill breaks the connection as if the server had crashed.
	kill  func(cause error)
	close func() error
}

func (o *options) newSession(ctx context.Context) (*session, error) {
	server := binder.NewProcess(o.processOptions("server")...)
	client := binder.NewProcess(o.processOptions("client")...)

	switch o.cfg.Transport.Kind {
	case config.TransportLoopback:
		link, err := loopback.Connect(ctx, server, client, loopback.WithWorkers(o.cfg.Transport.Workers))
		if err != nil {
			return nil, err
		}
		return &session{
			server: server,
			client: client,
			kill:   link.Kill,
			close: func() error {
				err := link.Close()
				link.Wait()
				return err
			},
		}, nil
	default:
		return o.streamSession(ctx, server, client)
	}
}

// streamSession listens on the configured address, serves the server
// Process on the first accepted connection and dials it from the client.
func (o *options) streamSession(ctx context.Context, server, client *binder.Process) (*session, error) {
	network, address := o.cfg.Transport.Kind, o.cfg.Transport.Address
	if network == config.TransportUnix {
		_ = os.Remove(address)
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, network, address)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTransport, errors.KindUnreachable, err, "listen "+address)
	}
	defer ln.Close()

	limits := stream.DefaultLimits()
	limits.MaxPayloadBytes = o.cfg.Transport.MaxPayloadBytes

	type accepted struct {
		conn *stream.Conn
		err  error
	}
	ch := make(chan accepted, 1)
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			ch <- accepted{err: errors.Wrap(errors.PhaseTransport, errors.KindUnreachable, err, "accept")}
			return
		}
		c, err := stream.Serve(ctx, server, nc, stream.WithLimits(limits))
		if err != nil {
			nc.Close()
		}
		ch <- accepted{conn: c, err: err}
	}()

	cc, err := stream.Dial(ctx, client, network, ln.Addr().String(), stream.WithLimits(limits))
	if err != nil {
		ln.Close()
		<-ch
		return nil, err
	}
	acc := <-ch
	if acc.err != nil {
		cc.Close()
		return nil, acc.err
	}
	sc := acc.conn
	o.log.Debug("stream session connected", zap.String("network", network), zap.String("address", ln.Addr().String()))

	return &session{
		server: server,
		client: client,
		kill: func(error) {
			sc.Close()
		},
		close: func() error {
			var result *multierror.Error
			sc.Close()
			cc.Close()
			for _, err := range []error{sc.Wait(), cc.Wait(), server.Close(), client.Close()} {
				if err != nil {
					result = multierror.Append(result, err)
				}
			}
			return result.ErrorOrNil()
		},
	}, nil
}
