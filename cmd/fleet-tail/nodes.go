package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/nodefleet/fleetview/pkg/nodes"
	"github.com/nodefleet/fleetview/pkg/state"
)

type NodesCmd struct {
	Bobs     bool   `help:"List Bob nodes and their fetching tick instead of the map points."`
	Role     string `help:"Only show points of this role (checkin-active, checkin-inactive, bare-metal, active, inactive)."`
	Selected bool   `help:"Mark servers selected in the state store."`
}

func (c *NodesCmd) Run(ctx context.Context, g *Globals) error {
	fv, err := g.load()
	if err != nil {
		return err
	}
	client, err := g.client(fv)
	if err != nil {
		return err
	}

	if c.Bobs {
		bobs, err := client.BobStatuses(ctx)
		if err != nil {
			return err
		}
		writeBobTable(os.Stdout, bobs, time.Now())
		return nil
	}

	snap, err := client.FetchSnapshot(ctx)
	if err != nil {
		return err
	}
	selected := map[string]bool{}
	if c.Selected {
		store, err := state.Open(fv.State)
		if err != nil {
			return err
		}
		servers, err := store.Selected(ctx)
		_ = store.Close()
		if err != nil {
			return err
		}
		for _, s := range servers {
			selected[s] = true
		}
	}
	writeNodeTable(os.Stdout, snap.Points(time.Now()), c.Role, selected)
	return nil
}

// nodeRows renders points sorted by server, optionally filtered to one role.
func nodeRows(points []nodes.NodePoint, role string, selected map[string]bool) [][]string {
	sorted := make([]nodes.NodePoint, 0, len(points))
	for _, p := range points {
		if role == "" || nodes.Role(p) == role {
			sorted = append(sorted, p)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Server < sorted[j].Server })

	rows := make([][]string, 0, len(sorted))
	for _, p := range sorted {
		mark := ""
		if selected[p.Server] {
			mark = "*"
		}
		checkin := "-"
		if !p.LastCheckinAt.IsZero() {
			checkin = p.LastCheckinAt.UTC().Format(time.RFC3339)
		}
		loc := "-"
		if p.HasLocation() {
			loc = fmt.Sprintf("%.2f,%.2f", p.Lat, p.Lon)
		}
		rows = append(rows, []string{mark + p.Server, p.Type, nodes.Role(p), loc, checkin})
	}
	return rows
}

func writeNodeTable(w io.Writer, points []nodes.NodePoint, role string, selected map[string]bool) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Server", "Type", "Role", "Lat,Lon", "Last check-in"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.AppendBulk(nodeRows(points, role, selected))
	table.Render()

	s := nodes.Classify(points)
	fmt.Fprintf(w, "%d nodes: %d active, %d inactive, %d bare-metal, %d check-in\n", s.Total, s.Active, s.Inactive, s.BareMetal, s.Checkin)
}

// bobRows renders Bob nodes by fetching tick, highest first, marking the ones
// eligible as a tick-log source.
func bobRows(bobs []nodes.BobStatus, now time.Time) [][]string {
	eligible := make(map[string]bool)
	for _, b := range nodes.Candidates(bobs) {
		eligible[b.Server] = true
	}
	sorted := append([]nodes.BobStatus(nil), bobs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CurrentFetchingTick > sorted[j].CurrentFetchingTick })

	rows := make([][]string, 0, len(sorted))
	for _, b := range sorted {
		active := "no"
		if nodes.IsActiveAt(b.LastTickChanged, now) {
			active = "yes"
		}
		candidate := ""
		if eligible[b.Server] {
			candidate = "yes"
		}
		rows = append(rows, []string{b.Server, strconv.FormatUint(b.CurrentFetchingTick, 10), active, candidate})
	}
	return rows
}

func writeBobTable(w io.Writer, bobs []nodes.BobStatus, now time.Time) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Server", "Fetching tick", "Active", "Candidate"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(bobRows(bobs, now))
	table.Render()
	if len(nodes.Candidates(bobs)) == 0 {
		fmt.Fprintln(w, errorColor("no Bob node is close enough to the network tick to stream from"))
	}
}

type SelectCmd struct {
	Servers []string `arg:"" optional:"" help:"Servers to select."`
	Clear   bool     `help:"Clear the selection."`
}

func (c *SelectCmd) Run(ctx context.Context, g *Globals) error {
	fv, err := g.load()
	if err != nil {
		return err
	}
	if !c.Clear && len(c.Servers) == 0 {
		return fmt.Errorf("no servers given; use --clear to clear the selection")
	}
	if fv.State.Backend == "memory" {
		fmt.Fprintln(os.Stderr, dimColor("state.backend is memory; the selection is not shared with other processes"))
	}
	store, err := state.Open(fv.State)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	servers := c.Servers
	if c.Clear {
		servers = nil
	}
	if err := store.SetSelected(ctx, servers); err != nil {
		return err
	}
	if err := store.SetNeedsReload(ctx, true); err != nil {
		return err
	}
	fmt.Printf("%d servers selected\n", len(servers))
	return nil
}
