package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/nodefleet/fleetview/pkg/stream"
	"github.com/nodefleet/fleetview/pkg/ticklog"
)

var (
	headerColor    = color.New(color.FgCyan, color.Bold).SprintFunc()
	highlightColor = color.New(color.FgYellow, color.Bold).SprintFunc()
	dimColor       = color.New(color.FgHiBlack).SprintFunc()
	errorColor     = color.New(color.FgHiRed).SprintFunc()
)

type TicksCmd struct {
	Host      string        `help:"Bob host to stream from. Picked from the status feed when empty."`
	Interval  time.Duration `default:"2s" help:"Redraw interval."`
	MaxLines  int           `default:"40" help:"Maximum lines per redraw."`
	ExpandAll bool          `help:"Show every log of every tick."`
}

func (c *TicksCmd) Run(ctx context.Context, g *Globals) error {
	fv, err := g.load()
	if err != nil {
		return err
	}
	client, err := g.client(fv)
	if err != nil {
		return err
	}
	sess, err := g.connect(ctx, fv, nil)
	if err != nil {
		return err
	}
	defer sess.Shutdown()
	ch := sess.Channel

	agg := ticklog.NewAggregator()
	specs := stream.LogSpecs(fv.Stream.Subscriptions)
	var sub *stream.TickLogSubscription
	if c.Host != "" {
		sub = stream.NewTickLogSubscription(ch, c.Host, specs, agg)
		if err := sub.Start(); err != nil {
			return err
		}
	} else {
		if sub, err = stream.OpenTickFeed(ctx, client, ch, specs, agg, nil, stream.LogNotifier{}); err != nil {
			return err
		}
	}
	sess.Track(sub)

	hl := stream.NewHighlighter(fv.Stream.Highlight)
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fmt.Printf("\033[H\033[2J")
			writeTicks(os.Stdout, sub.BobHost(), agg, hl, c.MaxLines, c.ExpandAll)
		}
	}
}

// tickLine is one line of the tick view before coloring.
type tickLine struct {
	Text      string
	Header    bool
	Highlight bool
}

// tickLines flattens rows newest first, stopping at limit lines. A collapsed tick
// ends with a count of its hidden logs.
func tickLines(rows []ticklog.Row, hl *stream.Highlighter, limit int, expandAll bool) []tickLine {
	var out []tickLine
	for _, r := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, tickLine{Text: fmt.Sprintf("tick %d (%d logs)", r.Tick, len(r.Logs)), Header: true})
		visible, hidden := r.Visible, r.Hidden
		if expandAll {
			visible, hidden = r.Logs, 0
		}
		for _, ev := range visible {
			if limit > 0 && len(out) >= limit {
				return out
			}
			m := ev.Message
			text := fmt.Sprintf("  #%d %s %s %s", m.LogID, m.TimestampString(), m.LogTypename, m.BodyString())
			out = append(out, tickLine{Text: text, Highlight: hl.Contains(text)})
		}
		if hidden > 0 {
			out = append(out, tickLine{Text: fmt.Sprintf("  ... %d more", hidden)})
		}
	}
	return out
}

func writeTicks(w io.Writer, host string, agg *ticklog.Aggregator, hl *stream.Highlighter, limit int, expandAll bool) {
	st := agg.Stats()
	state := "waiting for welcome"
	if agg.Subscribed() {
		state = "subscribed"
	}
	fmt.Fprintf(w, "Tick logs from %s (%s)\n", host, state)
	fmt.Fprintf(w, "events %d  duplicates %d  malformed %d  evicted %d  ticks %d\n", st.Events, st.Duplicates, st.Malformed, st.Evicted, agg.Len())
	fmt.Fprintf(w, "--------------------------------------------------\n")
	for _, l := range tickLines(agg.Rows(), hl, limit, expandAll) {
		switch {
		case l.Header:
			fmt.Fprintln(w, headerColor(l.Text))
		case l.Highlight:
			fmt.Fprintln(w, highlightColor(l.Text))
		default:
			fmt.Fprintln(w, l.Text)
		}
	}
}
