package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/nodefleet/fleetview/pkg/stream"
)

type ServiceCmd struct {
	Service string   `arg:"" help:"Service name, as known to the management API."`
	Host    string   `arg:"" help:"Host running the service."`
	Grep    []string `short:"g" help:"Extra keywords to highlight, on top of stream.highlight."`
	Only    bool     `help:"Print only highlighted lines."`
}

func (c *ServiceCmd) Run(ctx context.Context, g *Globals) error {
	fv, err := g.load()
	if err != nil {
		return err
	}
	sess, err := g.connect(ctx, fv, nil)
	if err != nil {
		return err
	}
	defer sess.Shutdown()
	ch := sess.Channel

	p := &linePrinter{
		w:    os.Stdout,
		hl:   stream.NewHighlighter(append(append([]string(nil), fv.Stream.Highlight...), c.Grep...)),
		only: c.Only,
	}
	sub := stream.NewServiceLogSubscription(ch, c.Service, c.Host, p.Print)
	if err := sub.Start(); err != nil {
		return err
	}
	sess.Track(sub)
	fmt.Fprintln(os.Stderr, dimColor(fmt.Sprintf("tailing %s on %s, Ctrl-C to stop", c.Service, c.Host)))

	<-ctx.Done()
	sess.Shutdown()
	p.mu.Lock()
	fmt.Fprintln(os.Stderr, dimColor(fmt.Sprintf("%d lines, %d highlighted", p.lines, p.hits)))
	p.mu.Unlock()
	return nil
}

// linePrinter colors highlighted lines. It is the sink of a service-log
// subscription and may be called from the channel's read goroutine.
type linePrinter struct {
	mu   sync.Mutex
	w    io.Writer
	hl   *stream.Highlighter
	only bool

	lines, hits int
}

func (p *linePrinter) Print(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines++
	if p.hl.Contains(line) {
		p.hits++
		fmt.Fprintln(p.w, highlightColor(line))
		return
	}
	if !p.only {
		fmt.Fprintln(p.w, line)
	}
}
