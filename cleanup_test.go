package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKillable records the signals it receives
type fakeKillable struct {
	name string
	err  error

	mu      sync.Mutex
	signals []Signal
}

func (k *fakeKillable) Name() string { return k.name }
func (k *fakeKillable) Kind() string { return "process" }

func (k *fakeKillable) Kill(sig Signal) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.signals = append(k.signals, sig)
	return k.err
}

func (k *fakeKillable) received() []Signal {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]Signal(nil), k.signals...)
}

// fakeFinder returns a fixed lookup result
type fakeFinder struct {
	killables []Killable
	err       error

	mu    sync.Mutex
	calls []findCall
}

type findCall struct {
	port int
	mode Mode
}

func (f *fakeFinder) FindTargetKillables(_ context.Context, port int, mode Mode) ([]Killable, error) {
	f.mu.Lock()
	f.calls = append(f.calls, findCall{port, mode})
	f.mu.Unlock()
	return f.killables, f.err
}

func (f *fakeFinder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestSweeper(f KillableFinder) *Sweeper {
	return &Sweeper{Finder: f, Port: 3354, Mode: ModeAuto, Signal: SIGKILL, Match: "csemInsight"}
}

func TestSweepNothingBound(t *testing.T) {
	finder := &fakeFinder{}
	report, err := newTestSweeper(finder).Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Found)
	assert.Empty(t, report.Matched)
	assert.Equal(t, 0, report.Killed)
	assert.Equal(t, []findCall{{3354, ModeAuto}}, finder.calls)
}

func TestSweepNoMatchingName(t *testing.T) {
	nginx := &fakeKillable{name: "nginx"}
	python := &fakeKillable{name: "python3"}
	finder := &fakeFinder{killables: []Killable{nginx, python}}

	report, err := newTestSweeper(finder).Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, report.Found)
	assert.Empty(t, report.Matched)
	assert.Empty(t, nginx.received())
	assert.Empty(t, python.received())
}

func TestSweepKillsMatchingTarget(t *testing.T) {
	sidecar := &fakeKillable{name: "csemInsight-x86_64-unknown-linux-gnu"}
	other := &fakeKillable{name: "node"}
	finder := &fakeFinder{killables: []Killable{other, sidecar}}

	report, err := newTestSweeper(finder).Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []Signal{SIGKILL}, sidecar.received())
	assert.Empty(t, other.received())
	assert.Equal(t, 1, report.Killed)
	assert.Equal(t, []string{"csemInsight-x86_64-unknown-linux-gnu"}, report.Matched)
}

func TestSweepMatchIsCaseSensitive(t *testing.T) {
	lower := &fakeKillable{name: "cseminsight"}
	finder := &fakeFinder{killables: []Killable{lower}}

	_, err := newTestSweeper(finder).Sweep(context.Background())

	require.NoError(t, err)
	assert.Empty(t, lower.received())
}

func TestSweepLookupFailureShortCircuits(t *testing.T) {
	sidecar := &fakeKillable{name: "csemInsight"}
	lookupErr := errors.New("lsof: permission denied")
	finder := &fakeFinder{killables: []Killable{sidecar}, err: lookupErr}

	report, err := newTestSweeper(finder).Sweep(context.Background())

	require.ErrorIs(t, err, lookupErr)
	assert.Empty(t, sidecar.received())
	assert.Equal(t, 0, report.Killed)
}

func TestSweepKillFailureIsIsolated(t *testing.T) {
	first := &fakeKillable{name: "csemInsight", err: errors.New("operation not permitted")}
	second := &fakeKillable{name: "csemInsight"}
	third := &fakeKillable{name: "csemInsight.exe"}
	finder := &fakeFinder{killables: []Killable{first, second, third}}

	report, err := newTestSweeper(finder).Sweep(context.Background())

	require.NoError(t, err)
	assert.Len(t, first.received(), 1)
	assert.Len(t, second.received(), 1)
	assert.Len(t, third.received(), 1)
	assert.Equal(t, 2, report.Killed)
	assert.Equal(t, 1, report.Failed())
	assert.Len(t, report.Matched, 3)
}

func TestSweepEmptyMatchKillsNothing(t *testing.T) {
	target := &fakeKillable{name: "anything"}
	s := newTestSweeper(&fakeFinder{killables: []Killable{target}})
	s.Match = ""

	_, err := s.Sweep(context.Background())

	require.NoError(t, err)
	assert.Empty(t, target.received())
}

func TestSweepTwiceIsIdempotent(t *testing.T) {
	// A second sweep sees the killable again; the kill of an already gone
	// process reports success.
	sidecar := &fakeKillable{name: "csemInsight"}
	s := newTestSweeper(&fakeFinder{killables: []Killable{sidecar}})

	first, err := s.Sweep(context.Background())
	require.NoError(t, err)
	second, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Killed)
	assert.Equal(t, 1, second.Killed)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestNewSweeperFromConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	s, err := NewSweeper(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3354, s.Port)
	assert.Equal(t, ModeAuto, s.Mode)
	assert.Equal(t, SIGKILL, s.Signal)
	assert.Equal(t, "csemInsight", s.Match)

	cfg.Cleanup.Signal = "SIGBOGUS"
	_, err = NewSweeper(cfg)
	assert.ErrorIs(t, err, ErrUnknownSignal)
}
