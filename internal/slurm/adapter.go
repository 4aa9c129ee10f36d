package slurm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/vk/memogrid/internal/ctxlog"
)

// envJobID is set by Slurm inside a running job; the main job reads it to
// declare its check job's dependency.
const envJobID = "SLURM_JOB_ID"

// Adapter submits logical tasks to Slurm and tracks them by stable identity.
type Adapter struct {
	cmd      Commander
	registry *Registry

	// payloadDir must be a filesystem shared between the submitting host and
	// the worker nodes; it transports argument payloads to the jobs.
	payloadDir string

	// workerCommand re-invokes the worker entrypoint on the remote node; the
	// payload path is appended as its final argument.
	workerCommand string
}

// NewAdapter creates an Adapter. The commander defaults to the real CLI.
func NewAdapter(registry *Registry, payloadDir, workerCommand string, cmd Commander) *Adapter {
	if cmd == nil {
		cmd = CLI{}
	}
	return &Adapter{
		cmd:           cmd,
		registry:      registry,
		payloadDir:    payloadDir,
		workerCommand: workerCommand,
	}
}

// Submit ships one unit of work: it serializes the payload to the shared
// directory, generates the task's stable id, and schedules the main job with
// that id stamped into the comment field. The returned record carries both
// identities.
func (a *Adapter) Submit(ctx context.Context, function string, args map[string]any, runtime map[string]any) (JobRecord, error) {
	// Fail before scheduling anything if the function cannot run remotely.
	if _, err := a.registry.Lookup(function); err != nil {
		return JobRecord{}, err
	}

	p := Payload{
		Function: function,
		Args:     args,
		Runtime:  runtime,
		StableID: uuid.NewString(),
	}
	path, err := a.writePayload(p)
	if err != nil {
		return JobRecord{}, err
	}
	return a.submitMain(ctx, p, path)
}

// SubmitAll ships a batch of units sharing one function and runtime, and
// optionally blocks until all of them complete.
func (a *Adapter) SubmitAll(ctx context.Context, function string, argsList []map[string]any, runtime map[string]any, blocking bool) ([]JobRecord, error) {
	records := make([]JobRecord, 0, len(argsList))
	for _, args := range argsList {
		rec, err := a.Submit(ctx, function, args, runtime)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if blocking {
		ids := make([]string, len(records))
		for i, rec := range records {
			ids[i] = rec.StableID
		}
		if err := a.Wait(ctx, ids); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (a *Adapter) writePayload(p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	f, err := os.CreateTemp(a.payloadDir, "memogrid-*.payload")
	if err != nil {
		return "", fmt.Errorf("create payload file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(raw); err != nil {
		return "", fmt.Errorf("write payload file: %w", err)
	}
	// Persist before the job can start, so workers never observe a partial write.
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("sync payload file: %w", err)
	}
	return f.Name(), nil
}

// submitMain schedules (or reschedules) the main job for a payload. Restarts
// reuse the payload's stable id, so the fresh native id stays correlated.
func (a *Adapter) submitMain(ctx context.Context, p Payload, payloadPath string) (JobRecord, error) {
	opts := SubmitOptions{
		CPUsPerTask: intFromRuntime(p.Runtime, "cpus", 1),
		MemPerCPU:   stringFromRuntime(p.Runtime, "mem_per_cpu", ""),
		JobName:     stringFromRuntime(p.Runtime, "jobname", "memogrid"),
		Comment:     p.StableID,
		Output:      stringFromRuntime(p.Runtime, "output", ""),
		TimeLimit:   stringFromRuntime(p.Runtime, "time", ""),
	}
	command := fmt.Sprintf("%s %s", a.workerCommand, payloadPath)

	nativeID, err := a.cmd.Submit(ctx, opts, command)
	if err != nil {
		return JobRecord{}, fmt.Errorf("submit main job: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Main job submitted.", "stable_id", p.StableID, "native_id", nativeID)
	return JobRecord{StableID: p.StableID, NativeID: nativeID}, nil
}

// submitCheck schedules the check job for the currently running main job. It
// depends on the main job terminating, in any state.
func (a *Adapter) submitCheck(ctx context.Context, p Payload, payloadPath, mainJobID string) error {
	opts := SubmitOptions{
		CPUsPerTask: 1,
		MemPerCPU:   "50M",
		JobName:     stringFromRuntime(p.Runtime, "jobname", "memogrid") + "-check",
		Dependency:  "afterany:" + mainJobID,
		TimeLimit:   "0-00:01:00",
	}
	command := fmt.Sprintf("%s -check=%s %s", a.workerCommand, mainJobID, payloadPath)

	if _, err := a.cmd.Submit(ctx, opts, command); err != nil {
		return fmt.Errorf("submit check job: %w", err)
	}
	return nil
}

// RunMain is the worker-side entrypoint of the main job: it loads the
// payload, submits the check job before touching user code, then executes the
// registered function.
func (a *Adapter) RunMain(ctx context.Context, payloadPath string) error {
	p, err := a.readPayload(payloadPath)
	if err != nil {
		return err
	}

	mainJobID := os.Getenv(envJobID)
	if mainJobID == "" {
		return fmt.Errorf("%s is not set; RunMain must execute inside a slurm job", envJobID)
	}
	if err := a.submitCheck(ctx, p, payloadPath, mainJobID); err != nil {
		return err
	}

	fn, err := a.registry.Lookup(p.Function)
	if err != nil {
		return err
	}
	return fn(ctx, p.Args)
}

// RunCheck is the worker-side entrypoint of the check job: it classifies the
// main job's outcome and resubmits it on TIMEOUT. Every other state is left
// for the waiter.
func (a *Adapter) RunCheck(ctx context.Context, payloadPath, mainJobID string) error {
	logger := ctxlog.FromContext(ctx)

	raw, err := a.cmd.Accounting(ctx, "-X", "-j", mainJobID, "-P", "--format", accountingColumns)
	if err != nil {
		return err
	}
	records, err := parseAccounting(raw)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no accounting record for job %s", mainJobID)
	}

	switch state := records[0].State; {
	case state == StateCompleted:
		logger.Debug("Main job completed, nothing to do.", "native_id", mainJobID)
		return nil
	case state == StateTimeout:
		p, err := a.readPayload(payloadPath)
		if err != nil {
			return err
		}
		logger.Info("Main job timed out, resubmitting.", "stable_id", p.StableID, "old_native_id", mainJobID)
		_, err = a.submitMain(ctx, p, payloadPath)
		return err
	default:
		// Terminal failures are classified by the waiter, not here.
		logger.Debug("Main job in non-restartable state.", "native_id", mainJobID, "state", state)
		return nil
	}
}

func (a *Adapter) readPayload(path string) (Payload, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, fmt.Errorf("read payload: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload %s: %w", filepath.Base(path), err)
	}
	return p, nil
}

func intFromRuntime(runtime map[string]any, key string, def int) int {
	switch v := runtime[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func stringFromRuntime(runtime map[string]any, key, def string) string {
	if v, ok := runtime[key].(string); ok {
		return v
	}
	return def
}
