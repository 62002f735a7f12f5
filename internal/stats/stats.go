// Package stats implements the C15 session summary: a small human-readable
// table printed on teardown, purely cosmetic and never consulted by
// control flow. Built on olekukonko/tablewriter and fatih/color the way
// the teacher stack's own console-reporting tools (cmd/devp2p's crawl
// summaries) format tabular output for a terminal.
package stats

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/lacrosse-labs/mcproxy/internal/proto"
)

// Summary collects the counters a session accumulates for its final
// report.
type Summary struct {
	Started           time.Time
	Ended             time.Time
	FramesByDirection map[proto.Direction]int
	BytesByDirection  map[proto.Direction]int64
	CompressionSaved  int64
	FinalPhase        proto.Phase
	EncryptionEverOn  bool
}

// NewSummary returns an empty Summary with its maps initialized.
func NewSummary(started time.Time) Summary {
	return Summary{
		Started:           started,
		FramesByDirection: make(map[proto.Direction]int),
		BytesByDirection:  make(map[proto.Direction]int64),
	}
}

// RecordFrame accounts for one relayed frame.
func (s *Summary) RecordFrame(dir proto.Direction, n int) {
	s.FramesByDirection[dir]++
	s.BytesByDirection[dir] += int64(n)
}

// Print renders the summary as a bordered table to w.
func Print(w io.Writer, s Summary) {
	bold := color.New(color.Bold)
	bold.Fprintln(w, "session summary")

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"metric", "value"})
	table.Append([]string{"duration", s.Ended.Sub(s.Started).Round(time.Millisecond).String()})
	table.Append([]string{"final phase", s.FinalPhase.String()})
	table.Append([]string{"encryption activated", fmt.Sprintf("%t", s.EncryptionEverOn)})
	table.Append([]string{"frames S->C", fmt.Sprintf("%d", s.FramesByDirection[proto.ServerToClient])})
	table.Append([]string{"frames C->S", fmt.Sprintf("%d", s.FramesByDirection[proto.ClientToServer])})
	table.Append([]string{"bytes S->C", fmt.Sprintf("%d", s.BytesByDirection[proto.ServerToClient])})
	table.Append([]string{"bytes C->S", fmt.Sprintf("%d", s.BytesByDirection[proto.ClientToServer])})
	table.Append([]string{"compression saved (bytes)", fmt.Sprintf("%d", s.CompressionSaved)})
	table.Render()
}
