package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"
)

// SweepReport summarizes one cleanup pass over the port
type SweepReport struct {
	ID      string
	Port    int
	Found   int
	Matched []string
	Killed  int
	Errors  []error
}

// Failed returns how many matched targets could not be killed
func (r SweepReport) Failed() int { return len(r.Errors) }

// Sweeper kills the sidecar processes still bound to a port
type Sweeper struct {
	Finder KillableFinder
	Port   int
	Mode   Mode
	Signal Signal
	// Match is compared as a substring of each killable's name
	Match string
}

// NewSweeper builds a Sweeper from config, using the host process finder
func NewSweeper(c Config) (*Sweeper, error) {
	mode, err := ParseMode(c.Cleanup.Mode)
	if err != nil {
		return nil, err
	}
	sig, err := ParseSignal(c.Cleanup.Signal)
	if err != nil {
		return nil, err
	}
	return &Sweeper{
		Finder: NewProcessFinder(),
		Port:   c.Cleanup.Port,
		Mode:   mode,
		Signal: sig,
		Match:  c.Sidecar.Name,
	}, nil
}

// Sweep looks up the killables on the port and signals every one whose name
// contains Match. A lookup failure is logged and returned before any kill is
// attempted. Kill failures are logged per target and collected in the report
// without stopping the remaining kills.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{ID: uuid.NewString(), Port: s.Port}
	ctx = logx.ContextWithFields(ctx, logx.Field("sweep", report.ID))
	logger := logx.WithContext(ctx)

	killables, err := s.Finder.FindTargetKillables(ctx, s.Port, s.Mode)
	if err != nil {
		logger.Errorf("[sweep] Failed to find killables on port %d: %v", s.Port, err)
		return report, fmt.Errorf("find killables on port %d: %w", s.Port, err)
	}
	report.Found = len(killables)

	for _, k := range killables {
		name := k.Name()
		if s.Match == "" || !strings.Contains(name, s.Match) {
			logger.Debugf("[sweep] Skipping %s %q on port %d", k.Kind(), name, s.Port)
			continue
		}
		report.Matched = append(report.Matched, name)

		logger.Infof("[sweep] Sending %s to %s %q on port %d", s.Signal, k.Kind(), name, s.Port)
		if err := k.Kill(s.Signal); err != nil {
			logger.Errorf("[sweep] Failed to kill %s %q: %v", k.Kind(), name, err)
			report.Errors = append(report.Errors, fmt.Errorf("kill %q: %w", name, err))
			continue
		}
		report.Killed++
	}

	if report.Found == 0 {
		logger.Infof("[sweep] Nothing listening on port %d", s.Port)
	} else {
		logger.Infof("[sweep] Port %d: found=%d matched=%d killed=%d failed=%d",
			s.Port, report.Found, len(report.Matched), report.Killed, report.Failed())
	}
	return report, nil
}
