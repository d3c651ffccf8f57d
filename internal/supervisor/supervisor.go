// Package supervisor launches project commands as child processes, captures
// their output per slot and stops them together with their descendants.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/rama-kairi/devrunner/internal/config"
	superr "github.com/rama-kairi/devrunner/internal/errors"
	"github.com/rama-kairi/devrunner/internal/logger"
	"github.com/rama-kairi/devrunner/internal/shell"
	"github.com/rama-kairi/devrunner/internal/utils"
)

const (
	RunKindStart   = "start"
	RunKindInstall = "install"
)

// RunRecorder persists the start and stop of every run. Failures are logged
// and never fail the lifecycle operation.
type RunRecorder interface {
	RecordRunStart(runID string, slot int, kind, command, workingDir string, pid int, startedAt time.Time) error
	RecordRunStop(runID string, stoppedAt time.Time) error
}

// Supervisor owns the process registry and output aggregator. The two are
// guarded by separate locks and never updated as a pair.
type Supervisor struct {
	config   config.SupervisorConfig
	logger   *logger.Logger
	registry *registry
	outputs  *OutputAggregator
	recorder RunRecorder
	platform func() shell.Platform
}

// NewSupervisor creates a supervisor. recorder may be nil.
func NewSupervisor(cfg config.SupervisorConfig, log *logger.Logger, recorder RunRecorder) *Supervisor {
	s := &Supervisor{
		config:   cfg,
		logger:   log.WithComponent("supervisor"),
		registry: newRegistry(),
		outputs:  NewOutputAggregator(),
		recorder: recorder,
	}
	s.platform = func() shell.Platform {
		p := shell.CurrentPlatform(s.config.FallbackShell)
		if s.config.Shell != "" {
			p.Shell = s.config.Shell
		}
		return p
	}
	return s
}

// Start runs command in dir under slot. The slot's output buffer is reset.
// A process already running in slot is stopped first.
func (s *Supervisor) Start(slot int, dir, command string) error {
	return s.launch(slot, dir, command, RunKindStart, "")
}

// InstallPackages runs the install command of manager ("npm" or "yarn") under
// slot. The slot's existing output is kept and a marker line appended.
func (s *Supervisor) InstallPackages(slot int, dir, manager string) error {
	command, ok := utils.InstallCommand(manager)
	if !ok {
		return superr.InvalidPackageManager(manager)
	}
	return s.launch(slot, dir, command, RunKindInstall, fmt.Sprintf("Running %s install...", manager))
}

// Stop terminates the process in slot and all its descendants, then reaps
// it. Stopping an idle slot succeeds. The exit status is not reported.
func (s *Supervisor) Stop(slot int) error {
	p, ok := s.registry.remove(slot)
	if !ok {
		return nil
	}
	return s.shutdown(slot, p)
}

// Output returns the output captured for slot so far
func (s *Supervisor) Output(slot int) string {
	return s.outputs.Snapshot(slot)
}

// DiscardOutput drops the buffer of an idle slot and reports whether it did.
// The buffer of a running slot is kept.
func (s *Supervisor) DiscardOutput(slot int) bool {
	unlock := s.registry.lockSlot(slot)
	defer unlock()

	if s.registry.has(slot) {
		return false
	}
	s.outputs.Discard(slot)
	return true
}

// IsRunning reports whether slot currently holds a tracked process
func (s *Supervisor) IsRunning(slot int) bool {
	return s.registry.has(slot)
}

// RunningCount returns the number of tracked processes
func (s *Supervisor) RunningCount() int {
	return s.registry.count()
}

// BufferedBytes returns the size of all captured output
func (s *Supervisor) BufferedBytes() int {
	return s.outputs.TotalBytes()
}

// DetectPackageManager returns "yarn" or "npm" for the project in dir
func (s *Supervisor) DetectPackageManager(dir string) string {
	return utils.DetectNodePackageManager(dir)
}

// KillsDescendants reports whether Stop reaches the whole process tree on
// this platform
func (s *Supervisor) KillsDescendants() bool {
	return killsDescendants
}

// Shutdown stops every tracked process
func (s *Supervisor) Shutdown() {
	for _, slot := range s.registry.slots() {
		if err := s.Stop(slot); err != nil {
			s.logger.Error("Failed to stop process during shutdown", err, map[string]interface{}{
				"slot": slot,
			})
		}
	}
}

func (s *Supervisor) launch(slot int, dir, command, kind, marker string) error {
	log := s.logger.WithSlot(slot)

	spec, err := shell.Build(s.platform(), dir, command)
	if err != nil {
		return err
	}

	unlock := s.registry.lockSlot(slot)
	defer unlock()

	if prev, ok := s.registry.remove(slot); ok {
		log.Warn("Slot already has a running process, stopping it first", map[string]interface{}{
			"run_id": prev.runID,
			"pid":    prev.pid,
		})
		if err := s.shutdown(slot, prev); err != nil {
			log.Error("Failed to stop previous process", err)
		}
	}

	cmd, stdout, stderr, err := spawn(spec)
	if err != nil {
		log.Error("Failed to spawn process", err, map[string]interface{}{
			"command":     command,
			"working_dir": dir,
		})
		return err
	}

	p := &process{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		runID:     uuid.New().String(),
		kind:      kind,
		command:   command,
		startedAt: time.Now(),
	}

	// The buffer belongs to the new generation before the process is visible
	// in the registry.
	if marker == "" {
		s.outputs.Reset(slot, p.runID)
	} else {
		s.outputs.Continue(slot, p.runID, marker)
	}

	// Stop can only reach the run once it is registered, so the start row
	// always exists before its stop is recorded.
	if s.recorder != nil {
		if err := s.recorder.RecordRunStart(p.runID, slot, kind, command, dir, p.pid, p.startedAt); err != nil {
			log.Warn("Failed to record run start", map[string]interface{}{
				"run_id": p.runID,
				"error":  err.Error(),
			})
		}
	}

	if raced := s.registry.insert(slot, p); raced != nil {
		log.Warn("Concurrent start replaced a process, stopping it", map[string]interface{}{
			"run_id": raced.runID,
		})
		if err := s.shutdown(slot, raced); err != nil {
			log.Error("Failed to stop replaced process", err)
		}
	}

	readerLog := log.WithFields(map[string]interface{}{"run_id": p.runID})
	go s.outputs.capture(stdout, slot, p.runID, "stdout", readerLog)
	go s.outputs.capture(stderr, slot, p.runID, "stderr", readerLog)

	log.LogProcessEvent("started", slot, map[string]interface{}{
		"run_id":      p.runID,
		"kind":        kind,
		"command":     command,
		"pid":         p.pid,
		"shell":       spec.Path,
		"working_dir": dir,
	})

	return nil
}

// spawn starts spec with stdout and stderr on fresh pipes and stdin on the
// null device. The returned readers belong to the caller.
func spawn(spec shell.LaunchSpec) (*exec.Cmd, *os.File, *os.File, error) {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, nil, nil, superr.SpawnFailed(err, spec.Path)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, nil, nil, superr.SpawnFailed(err, spec.Path)
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	applyCmdLine(cmd, spec.CmdLine)
	prepareCommand(cmd)

	startErr := cmd.Start()

	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()

	if startErr != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, nil, nil, superr.SpawnFailed(startErr, spec.Path)
	}

	return cmd, stdoutR, stderrR, nil
}

// shutdown terminates p and blocks until it has been reaped
func (s *Supervisor) shutdown(slot int, p *process) error {
	log := s.logger.WithSlot(slot)

	if err := terminate(p.cmd, s.config.GracePeriod); err != nil {
		log.Warn("Termination signal failed", map[string]interface{}{
			"run_id": p.runID,
			"pid":    p.pid,
			"error":  err.Error(),
		})
	}

	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		log.Error("Failed to wait for process", err, map[string]interface{}{
			"run_id": p.runID,
			"pid":    p.pid,
		})
		return superr.WaitFailed(err, slot)
	}

	stoppedAt := time.Now()
	if s.recorder != nil {
		if err := s.recorder.RecordRunStop(p.runID, stoppedAt); err != nil {
			log.Warn("Failed to record run stop", map[string]interface{}{
				"run_id": p.runID,
				"error":  err.Error(),
			})
		}
	}

	log.LogProcessEvent("stopped", slot, map[string]interface{}{
		"run_id":   p.runID,
		"pid":      p.pid,
		"duration": stoppedAt.Sub(p.startedAt).String(),
	})

	return nil
}
