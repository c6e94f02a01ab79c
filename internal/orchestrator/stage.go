package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Stage is one pass over all identities with a single device persona.
type Stage int

const (
	Desktop Stage = iota
	Mobile
)

func (s Stage) String() string {
	switch s {
	case Desktop:
		return "desktop"
	case Mobile:
		return "mobile"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Outcome is the result of one identity's task in one stage.
type Outcome struct {
	Identity  string
	Stage     Stage
	Started   time.Time
	Duration  time.Duration
	Searches  int
	Cooldowns int
	Err       error
}

// stageGroup joins the tasks of one stage. A failing task never cancels its
// siblings; Wait returns only after every task has finished.
type stageGroup struct {
	stage Stage
	g     errgroup.Group

	mu       sync.Mutex
	outcomes []Outcome
}

func newStageGroup(stage Stage, size int) *stageGroup {
	return &stageGroup{stage: stage, outcomes: make([]Outcome, size)}
}

// Go runs task for the identity at index i.
func (s *stageGroup) Go(i int, task func() Outcome) {
	s.g.Go(func() error {
		out := task()
		out.Stage = s.stage
		s.mu.Lock()
		s.outcomes[i] = out
		s.mu.Unlock()
		return out.Err
	})
}

// Wait blocks until all tasks are done and returns their outcomes in
// identity order together with every task error combined.
func (s *stageGroup) Wait() ([]Outcome, error) {
	first := s.g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	outcomes := append([]Outcome(nil), s.outcomes...)
	if first == nil {
		return outcomes, nil
	}
	var err error
	for _, o := range outcomes {
		err = multierr.Append(err, o.Err)
	}
	return outcomes, err
}
