// Package render formats Control API results for the terminal.
package render

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/localchain-dev/localchain/internal/domain"
)

var (
	runningStyle  = color.New(color.FgGreen)
	startingStyle = color.New(color.FgYellow)
	stoppingStyle = color.New(color.FgYellow)
	crashedStyle  = color.New(color.FgRed)
	idleStyle     = color.New(color.FgHiBlack)
	labelStyle    = color.New(color.Bold)
	faintStyle    = color.New(color.Faint)
)

// StatusText colors a chain status for terminal output.
func StatusText(s domain.ChainStatus) string {
	switch s {
	case domain.StatusRunning:
		return runningStyle.Sprintf("🟢 %s", s)
	case domain.StatusStarting:
		return startingStyle.Sprintf("🟡 %s", s)
	case domain.StatusStopping:
		return stoppingStyle.Sprintf("🟡 %s", s)
	case domain.StatusCrashed:
		return crashedStyle.Sprintf("🔴 %s", s)
	default:
		return idleStyle.Sprint(string(s))
	}
}

// ChainsRenderer renders chain lists and detail views.
type ChainsRenderer struct {
	out io.Writer
}

// NewChainsRenderer creates a renderer writing to out.
func NewChainsRenderer(out io.Writer) *ChainsRenderer {
	return &ChainsRenderer{out: out}
}

// RenderList renders all chains as a table.
func (r *ChainsRenderer) RenderList(chains []domain.ChainState) error {
	if len(chains) == 0 {
		fmt.Fprintln(r.out, "No chains found. Create one with 'localchain create'.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.Style().Options.SeparateRows = false
	t.AppendHeader(table.Row{"ID", "NAME", "KIND", "STATUS", "PORT", "PID", "RPC URL"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "PORT", Align: text.AlignRight},
		{Name: "PID", Align: text.AlignRight},
	})

	for _, st := range chains {
		port := "-"
		pid := "-"
		rpc := "-"
		if st.Port != 0 {
			port = fmt.Sprintf("%d", st.Port)
			rpc = st.RPCURL()
		}
		if st.PID != 0 {
			pid = fmt.Sprintf("%d", st.PID)
		}
		t.AppendRow(table.Row{shortID(st.ID), st.Config.Name, st.Config.Kind, StatusText(st.Status), port, pid, rpc})
	}

	t.Render()
	return nil
}

// RenderDetail renders one chain in full.
func (r *ChainsRenderer) RenderDetail(st domain.ChainState) error {
	labelStyle.Fprintf(r.out, "Chain %s", st.Config.Name)
	fmt.Fprintf(r.out, " (%s)\n", st.ID)

	fmt.Fprintf(r.out, "  Kind:    %s\n", st.Config.Kind)
	fmt.Fprintf(r.out, "  Status:  %s\n", StatusText(st.Status))
	if st.Port != 0 {
		fmt.Fprintf(r.out, "  RPC:     %s\n", st.RPCURL())
		fmt.Fprintf(r.out, "  WS:      %s\n", st.WSURL())
	}
	if st.PID != 0 {
		fmt.Fprintf(r.out, "  PID:     %d\n", st.PID)
	}
	if st.Config.ChainID != 0 {
		fmt.Fprintf(r.out, "  ChainID: %d\n", st.Config.ChainID)
	}
	if st.Config.BlockTime != 0 {
		fmt.Fprintf(r.out, "  Mining:  every %ds\n", st.Config.BlockTime)
	} else {
		fmt.Fprintf(r.out, "  Mining:  on demand\n")
	}
	if st.Config.ForkURL != "" {
		fmt.Fprintf(r.out, "  Fork:    %s\n", st.Config.ForkURL)
	}
	fmt.Fprintf(r.out, "  Created: %s\n", st.CreatedAt.Format(time.RFC3339))
	if st.StartedAt != nil {
		fmt.Fprintf(r.out, "  Started: %s\n", st.StartedAt.Format(time.RFC3339))
	}
	if st.LastHealth != nil {
		health := crashedStyle.Sprint("❌ unhealthy")
		if st.LastHealth.Healthy {
			health = runningStyle.Sprint("✅ healthy")
		}
		fmt.Fprintf(r.out, "  Health:  %s (checked %s)\n", health, st.LastHealth.Time.Format(time.TimeOnly))
	}
	if st.LastError != "" {
		fmt.Fprintf(r.out, "  Error:   %s\n", crashedStyle.Sprint(st.LastError))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
