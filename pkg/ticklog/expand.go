package ticklog

// Row is one rendered tick: its sorted logs, whether it is expanded, and the
// logs actually visible in that state.
type Row struct {
	TickEvent
	Expanded bool
	Visible  []RawLogEvent
	Hidden   int
}

func defaultExpanded(count int) bool {
	return count <= CollapseThreshold
}

// Expanded reports the expansion state of a tick. A toggle only holds while the
// tick's log count is unchanged; new logs restore the default.
func (a *Aggregator) Expanded(tick uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.expandedLocked(tick)
}

func (a *Aggregator) expandedLocked(tick uint64) bool {
	count := 0
	if te, ok := a.ticks[tick]; ok {
		count = len(te.Logs)
	}
	st, ok := a.expanded[tick]
	if !ok || st.count != count {
		return defaultExpanded(count)
	}
	return st.expanded
}

// Toggle flips the expansion state of a retained tick and returns the new state.
func (a *Aggregator) Toggle(tick uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	te, ok := a.ticks[tick]
	if !ok {
		return false
	}
	next := !a.expandedLocked(tick)
	a.expanded[tick] = expansion{count: len(te.Logs), expanded: next}
	return next
}

// Rows is View with expansion applied.
func (a *Aggregator) Rows() []Row {
	view := a.View()
	rows := make([]Row, 0, len(view))
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, te := range view {
		r := Row{TickEvent: te, Expanded: a.expandedLocked(te.Tick)}
		r.Visible = VisibleLogs(te.Logs, r.Expanded)
		r.Hidden = len(te.Logs) - len(r.Visible)
		rows = append(rows, r)
	}
	return rows
}

// VisibleLogs returns the logs shown for a tick in the given state.
func VisibleLogs(logs []RawLogEvent, expanded bool) []RawLogEvent {
	if expanded || len(logs) <= CollapseThreshold {
		return logs
	}
	return logs[:CollapseThreshold]
}
