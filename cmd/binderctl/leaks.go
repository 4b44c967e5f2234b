package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/value"
)

func newLeaksCommand(o *options) *cobra.Command {
	var tickets, leak int
	cmd := &cobra.Command{
		Use:   "leaks",
		Short: "Run a ticket workload with leak tracking and report live objects",
		Long: `leaks takes tickets from a counter through a proxy and releases them.
With --leak some tickets are kept on purpose, so the report shows them on
both sides of the connection together with their owners.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.tracker == nil {
				o.tracker = atom.NewTracker(atom.WithOwners())
			}
			return o.runLeaks(cmd.Context(), cmd.OutOrStdout(), tickets, leak)
		},
	}
	cmd.Flags().IntVarP(&tickets, "tickets", "n", 20, "number of tickets to take")
	cmd.Flags().IntVar(&leak, "leak", 0, "number of tickets to keep")
	return cmd
}

func (o *options) runLeaks(ctx context.Context, out io.Writer, tickets, leak int) error {
	gen := o.tracker.MarkGeneration()

	s, err := o.newSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.close(); err != nil {
			o.log.Debug("session close", zap.Error(err))
		}
	}()

	_, ref, err := publishCounter(ctx, o, s)
	if err != nil {
		return err
	}
	defer ref.Release()

	cctx, cancel := o.callContext(ctx)
	defer cancel()

	var kept []*atom.Ref[binder.IBinder]
	defer func() {
		for _, t := range kept {
			t.Release()
		}
	}()
	for i := 0; i < tickets; i++ {
		t, err := takeTicket(cctx, ref.Get(), fmt.Sprintf("ticket-%d", i))
		if err != nil {
			return err
		}
		if _, err := binder.Call(cctx, t.Get(), codeNumber, value.Undefined()); err != nil {
			t.Release()
			return err
		}
		if i < leak {
			kept = append(kept, t)
			continue
		}
		t.Release()
	}

	// Releases travel to the server asynchronously; a ping drains them.
	if err := ref.Get().Ping(cctx); err != nil {
		return err
	}

	report := o.tracker.Report(gen)
	fmt.Fprintf(out, "took %d tickets, kept %d\n", tickets, len(kept))
	fmt.Fprintf(out, "server exports %d, client proxies %d\n", s.server.Exports(), s.client.Proxies())

	counts := o.tracker.CountByType(gen)
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(out, "  %-24s %d\n", t, counts[t])
	}
	printLeaks(out, report)
	return nil
}
