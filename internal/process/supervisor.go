package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrTerminated = errors.New("process terminated on request")

const (
	gracePolls    = 10
	gracePollTick = 50 * time.Millisecond
	maxLineBytes  = 1024 * 1024
)

type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

type Result struct {
	Code       int
	Err        error
	LastStderr string
}

// Terminated reports whether the run ended because Terminate was called.
func (r Result) Terminated() bool {
	return errors.Is(r.Err, ErrTerminated)
}

type active struct {
	jobID      string
	cmd        *exec.Cmd
	exited     chan struct{}
	terminated atomic.Bool
}

// Supervisor runs one external process at a time on behalf of a job and
// lets other goroutines stop it by job id.
type Supervisor struct {
	mu      sync.Mutex
	current *active
	polls   int
	tick    time.Duration
}

func NewSupervisor() *Supervisor {
	return &Supervisor{polls: gracePolls, tick: gracePollTick}
}

// ActiveJob returns the job id owning the live process, if any.
func (s *Supervisor) ActiveJob() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", false
	}
	return s.current.jobID, true
}

// Run starts the command, feeds every non-empty stdout and stderr line to
// onLine and blocks until the process is gone. Cancelling ctx terminates
// the process the same way Terminate does.
func (s *Supervisor) Run(ctx context.Context, jobID string, c Command, onLine func(string)) Result {
	if ctx.Err() != nil {
		return Result{Code: -1, Err: ErrTerminated}
	}
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	setProcGroupAttr(cmd)
	log.Debug().Str("op", "process/run").Str("job", jobID).Msgf("executing %s", cmd.String())

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{Code: 1, Err: fmt.Errorf("error creating stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{Code: 1, Err: fmt.Errorf("error creating stderr pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		log.Error().Str("op", "process/run").Str("job", jobID).Err(err).Msg("error starting process")
		return Result{Code: 1, Err: fmt.Errorf("error starting %s: %w", c.Path, err)}
	}

	a := &active{jobID: jobID, cmd: cmd, exited: make(chan struct{})}
	s.mu.Lock()
	s.current = a
	s.mu.Unlock()

	var (
		wg         sync.WaitGroup
		lastStderr atomic.Value
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		processStream(stdout, onLine)
	}()
	go func() {
		defer wg.Done()
		processStream(stderr, func(line string) {
			lastStderr.Store(line)
			if onLine != nil {
				onLine(line)
			}
		})
	}()
	done := make(chan error, 1)
	go func() {
		wg.Wait()
		err := cmd.Wait()
		close(a.exited)
		done <- err
	}()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		s.Terminate(jobID)
		waitErr = <-done
	}

	s.mu.Lock()
	if s.current == a {
		s.current = nil
	}
	s.mu.Unlock()

	res := Result{Code: cmd.ProcessState.ExitCode()}
	if v, ok := lastStderr.Load().(string); ok {
		res.LastStderr = v
	}
	switch {
	case a.terminated.Load():
		res.Err = ErrTerminated
	case waitErr != nil:
		res.Err = fmt.Errorf("exit status %d: %w", res.Code, waitErr)
	}
	log.Debug().Str("op", "process/run").Str("job", jobID).Int("code", res.Code).Msg("process exited")
	return res
}

// Terminate stops the process owned by jobID: an interrupt to the whole
// group, a short grace period, then a kill. It is a no-op when another job
// (or none) owns the live process and reports whether it acted.
func (s *Supervisor) Terminate(jobID string) bool {
	s.mu.Lock()
	a := s.current
	if a == nil || a.jobID != jobID {
		s.mu.Unlock()
		return false
	}
	a.terminated.Store(true)
	s.mu.Unlock()

	p := a.cmd.Process
	if err := interruptGroup(p); err != nil {
		log.Debug().Str("op", "process/terminate").Str("job", jobID).Err(err).Msg("interrupt failed")
	} else {
		for range s.polls {
			select {
			case <-a.exited:
				return true
			case <-time.After(s.tick):
			}
		}
	}
	select {
	case <-a.exited:
		return true
	default:
	}
	log.Warn().Str("op", "process/terminate").Str("job", jobID).Msg("process still running after grace period, killing")
	if err := killGroup(p); err != nil {
		log.Debug().Str("op", "process/terminate").Str("job", jobID).Err(err).Msg("kill failed")
	}
	return true
}

func processStream(reader io.Reader, streamFunc func(string)) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && streamFunc != nil {
			streamFunc(line)
		}
	}
	// keep draining so a very long line cannot block the child
	io.Copy(io.Discard, reader)
}
