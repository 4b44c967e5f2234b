package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/value"
)

func newDemoCommand(o *options) *cobra.Command {
	var calls int
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Publish a counter, call it through a proxy and watch it die",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runDemo(cmd.Context(), cmd.OutOrStdout(), calls)
		},
	}
	cmd.Flags().IntVarP(&calls, "calls", "n", 5, "number of add calls")
	return cmd
}

func (o *options) runDemo(ctx context.Context, out io.Writer, calls int) error {
	o.serveMetrics(ctx)
	var gen uint64
	if o.tracker != nil {
		gen = o.tracker.MarkGeneration()
	}

	s, err := o.newSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.close(); err != nil {
			o.log.Debug("session close", zap.Error(err))
		}
	}()

	var held []interface{ Release() bool }
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release()
		}
		held = nil
	}
	defer release()

	_, ref, err := publishCounter(ctx, o, s)
	if err != nil {
		return err
	}
	held = append(held, ref)
	px := ref.Get()

	cctx, cancel := o.callContext(ctx)
	defer cancel()
	desc, err := px.Descriptor(cctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "connected to %s over %s\n", desc, o.cfg.Transport.Kind)

	for i := 1; i <= calls; i++ {
		total, err := binder.Call(cctx, px, codeAdd, value.Int32(int32(i)))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "add %d -> %s\n", i, total)
	}

	echoed, err := binder.Call(cctx, px, codeEcho, value.NewMap(
		value.Pair{Key: value.String("name"), Value: value.String("binderkit")},
		value.Pair{Key: value.String("calls"), Value: value.Int32(int32(calls))},
	))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "echo -> %s\n", echoed)

	ticket, err := takeTicket(cctx, px, "demo")
	if err != nil {
		return err
	}
	number, err := binder.Call(cctx, ticket.Get(), codeNumber, value.Undefined())
	ticket.Release()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ticket -> %s\n", number)

	died := make(chan value.Value, 1)
	watcher := s.client.NewLocal("binderkit.demo.watcher", nil, o.localOptions()...)
	watcher.Register(binder.CodeObituary, func(_ context.Context, args value.Value) (value.Value, error) {
		died <- args
		return value.Undefined(), nil
	})
	held = append(held, atom.Acquire(watcher, "demo"))
	if err := px.Link(watcher, value.String(desc), 0); err != nil {
		return err
	}

	s.kill(errors.Unreachable(errors.PhaseTransport, "server killed by demo"))
	select {
	case who := <-died:
		fmt.Fprintf(out, "obituary for %s\n", who)
	case <-time.After(5 * time.Second):
		return errors.Wrap(errors.PhaseLink, errors.KindTimedOut, context.DeadlineExceeded, "waiting for obituary")
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := px.Ping(cctx); err != nil {
		fmt.Fprintf(out, "ping after death -> %s\n", errors.KindOf(err))
	}

	if o.tracker != nil {
		release()
		printLeaks(out, o.tracker.Report(gen))
	}
	return nil
}

func printLeaks(out io.Writer, leaks []atom.Leak) {
	if len(leaks) == 0 {
		fmt.Fprintln(out, "no live objects")
		return
	}
	fmt.Fprintf(out, "%d live objects:\n", len(leaks))
	for _, l := range leaks {
		fmt.Fprintf(out, "  %s\n", l)
	}
}
