package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nodefleet/fleetview/pkg/stream"
	"github.com/nodefleet/fleetview/pkg/ticklog"
)

type RawCmd struct {
	JSON     bool          `help:"Print every frame as indented JSON instead of the periodic report."`
	Interval time.Duration `default:"2s" help:"Report interval."`
	BobHost  string        `name:"bob-host" help:"Subscribe to tick logs from this Bob host."`
	Service  string        `help:"Subscribe to this service's log (needs --host)."`
	Host     string        `help:"Host for --service."`
}

func (c *RawCmd) Run(ctx context.Context, g *Globals) error {
	fv, err := g.load()
	if err != nil {
		return err
	}
	stats := NewStats(os.Stdout)
	sess, err := g.connect(ctx, fv, func(env stream.Envelope) { stats.Record(env, c.JSON) })
	if err != nil {
		return err
	}
	defer sess.Shutdown()
	ch := sess.Channel

	var subs []stream.Subscription
	if c.BobHost != "" {
		subs = append(subs, stream.NewTickLogSubscription(ch, c.BobHost, stream.LogSpecs(fv.Stream.Subscriptions), ticklog.NewAggregator()))
	}
	if c.Service != "" {
		if c.Host == "" {
			return fmt.Errorf("--service needs --host")
		}
		subs = append(subs, stream.NewServiceLogSubscription(ch, c.Service, c.Host, func(string) {}))
	}
	for _, s := range subs {
		if err := s.Start(); err != nil {
			return err
		}
		sess.Track(s)
	}

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if c.JSON {
				stats.Report(os.Stdout)
			}
			return nil
		case <-ticker.C:
			if !c.JSON {
				fmt.Printf("\033[H\033[2J") // Clear screen
				stats.Report(os.Stdout)
			}
		}
	}
}

type logKey struct {
	tick uint64
	id   uint64
}

// Stats counts every frame seen on the channel, whatever it was addressed to.
type Stats struct {
	mu           sync.Mutex
	Frames       int
	Bytes        int
	Events       map[string]int
	Hosts        map[string]int
	Services     map[string]int
	Ticks        map[uint64]int
	Welcomes     int
	Malformed    int
	Duplicates   int
	ServiceLines int
	StartTime    time.Time

	seen map[logKey]struct{}
	out  io.Writer
	now  func() time.Time
}

func NewStats(out io.Writer) *Stats {
	return &Stats{
		Events:    make(map[string]int),
		Hosts:     make(map[string]int),
		Services:  make(map[string]int),
		Ticks:     make(map[uint64]int),
		StartTime: time.Now(),
		seen:      make(map[logKey]struct{}),
		out:       out,
		now:       time.Now,
	}
}

func (s *Stats) Record(env stream.Envelope, showJSON bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Frames++
	s.Bytes += len(env.Data)
	s.Events[env.Event]++

	switch env.Event {
	case stream.EventBobLog:
		s.recordTickLog(env.Data)
	case stream.EventServiceLog:
		var frame stream.ServiceLogFrame
		if err := json.Unmarshal(env.Data, &frame); err != nil {
			s.Malformed++
			break
		}
		s.Services[frame.Service]++
		if frame.Host != "" {
			s.Hosts[frame.Host]++
		}
		s.ServiceLines += len(stream.SplitLogLines(frame.Log))
	}

	if showJSON {
		var prettyJSON bytes.Buffer
		if err := json.Indent(&prettyJSON, env.Data, "", "  "); err != nil {
			prettyJSON.Reset()
			prettyJSON.Write(env.Data)
		}
		fmt.Fprintf(s.out, "%s %s\n%s\n\n", dimColor(s.now().Format("15:04:05.000")), headerColor(env.Event), prettyJSON.String())
	}
}

func (s *Stats) recordTickLog(data json.RawMessage) {
	payload := []byte(data)
	if trimmed := bytes.TrimSpace(payload); len(trimmed) > 0 && trimmed[0] == '{' {
		var hosted struct {
			BobHost string          `json:"bobHost"`
			Data    json.RawMessage `json:"data"`
		}
		if json.Unmarshal(trimmed, &hosted) == nil && hosted.BobHost != "" {
			s.Hosts[hosted.BobHost]++
			payload = hosted.Data
		}
	}

	ev, err := ticklog.Decode(payload)
	if err != nil {
		s.Malformed++
		return
	}
	if ev.IsWelcome() {
		s.Welcomes++
		return
	}
	tick, ok := ev.Message.TickValue()
	if !ok {
		s.Malformed++
		return
	}
	key := logKey{tick: tick, id: ev.Message.LogID}
	if _, dup := s.seen[key]; dup {
		s.Duplicates++
		return
	}
	s.seen[key] = struct{}{}
	s.Ticks[tick]++
}

// tickSpan returns the lowest and highest tick seen and how many ticks in
// between carried no log at all.
func (s *Stats) tickSpan() (lo, hi uint64, gaps int) {
	if len(s.Ticks) == 0 {
		return 0, 0, 0
	}
	first := true
	for t := range s.Ticks {
		if first || t < lo {
			lo = t
		}
		if first || t > hi {
			hi = t
		}
		first = false
	}
	gaps = int(hi-lo+1) - len(s.Ticks)
	return lo, hi, gaps
}

func (s *Stats) Report(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := s.now().Sub(s.StartTime).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	fmt.Fprintf(w, "Event Channel Stats (Running for %.1fs)\n", elapsed)
	fmt.Fprintf(w, "--------------------------------------------------\n")
	fmt.Fprintf(w, "Total Frames:  %d (%.2f/s)\n", s.Frames, float64(s.Frames)/elapsed)
	fmt.Fprintf(w, "Total Bytes:   %d (%.0f B/s)\n", s.Bytes, float64(s.Bytes)/elapsed)
	fmt.Fprintf(w, "Malformed:     %d\n", s.Malformed)
	fmt.Fprintf(w, "--------------------------------------------------\n")

	fmt.Fprintf(w, "FRAMES BY EVENT:\n")
	events := make([]string, 0, len(s.Events))
	for e := range s.Events {
		events = append(events, e)
	}
	sort.Strings(events)
	for _, e := range events {
		fmt.Fprintf(w, "  %-24s %d\n", e, s.Events[e])
	}
	fmt.Fprintf(w, "--------------------------------------------------\n")

	lo, hi, gaps := s.tickSpan()
	fmt.Fprintf(w, "TICK LOGS:\n")
	fmt.Fprintf(w, "  Welcomes:    %d\n", s.Welcomes)
	fmt.Fprintf(w, "  Ticks:       %d (%d..%d, %d without logs)\n", len(s.Ticks), lo, hi, gaps)
	fmt.Fprintf(w, "  Duplicates:  %d\n", s.Duplicates)
	fmt.Fprintf(w, "SERVICE LOGS:\n")
	fmt.Fprintf(w, "  Lines:       %d across %d services\n", s.ServiceLines, len(s.Services))
	fmt.Fprintf(w, "--------------------------------------------------\n")

	fmt.Fprintf(w, "LIKELY CONCLUSIONS:\n")
	conclusions := s.analyze(elapsed)
	if len(conclusions) == 0 {
		fmt.Fprintf(w, "  - Channel looks healthy\n")
	} else {
		for _, c := range conclusions {
			fmt.Fprintf(w, "  - %s\n", c)
		}
	}
	fmt.Fprintf(w, "--------------------------------------------------\n")

	type hostCount struct {
		Host  string
		Count int
	}
	var hosts []hostCount
	for h, n := range s.Hosts {
		hosts = append(hosts, hostCount{h, n})
	}
	sort.Slice(hosts, func(i, j int) bool {
		if hosts[i].Count != hosts[j].Count {
			return hosts[i].Count > hosts[j].Count
		}
		return hosts[i].Host < hosts[j].Host
	})
	if len(hosts) > 5 {
		hosts = hosts[:5]
	}
	if len(hosts) > 0 {
		fmt.Fprintf(w, "Top %d Hosts:\n", len(hosts))
		for _, h := range hosts {
			fmt.Fprintf(w, "  %s: %d frames\n", h.Host, h.Count)
		}
	}
}

func (s *Stats) analyze(elapsed float64) []string {
	var results []string

	if s.Frames == 0 && elapsed >= 10 {
		results = append(results, "No frames received (is anything subscribed?)")
	}
	if s.Malformed > 0 && s.Malformed*10 >= s.Frames {
		results = append(results, "Frequent malformed frames (check the subscribed log types)")
	}
	if s.Duplicates > 0 {
		results = append(results, fmt.Sprintf("Duplicate deliveries (%d logs replayed, usually after a reconnect)", s.Duplicates))
	}
	if _, _, gaps := s.tickSpan(); gaps > 0 {
		results = append(results, fmt.Sprintf("Tick gaps (%d ticks without logs inside the observed span)", gaps))
	}
	if s.Events[stream.EventBobLog] > 0 && s.Welcomes == 0 {
		results = append(results, "Tick logs without a welcome (subscription was made by another client)")
	}
	if len(s.Hosts) > 1 {
		names := make([]string, 0, len(s.Hosts))
		for h := range s.Hosts {
			names = append(names, h)
		}
		sort.Strings(names)
		results = append(results, "Frames from several hosts on one channel: "+strings.Join(names, ", "))
	}
	return results
}
