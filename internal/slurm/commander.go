package slurm

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/vk/memogrid/internal/ctxlog"
)

// SubmitOptions carries the scheduler-facing knobs of one sbatch call. The
// Comment field transports the task's stable id.
type SubmitOptions struct {
	CPUsPerTask int
	MemPerCPU   string
	JobName     string
	Comment     string
	Output      string
	Dependency  string
	TimeLimit   string
}

// Commander abstracts the scheduler CLI so the adapter and waiter can be
// tested without a live cluster.
type Commander interface {
	// Submit schedules command via sbatch and returns the native job id.
	Submit(ctx context.Context, opts SubmitOptions, command string) (string, error)
	// Accounting runs sacct with the given arguments and returns its raw
	// delimited output.
	Accounting(ctx context.Context, args ...string) (string, error)
}

// CLI is the real Commander, shelling out to sbatch and sacct.
type CLI struct{}

var submittedJobRe = regexp.MustCompile(`Submitted batch job (\d+)`)

func (CLI) Submit(ctx context.Context, opts SubmitOptions, command string) (string, error) {
	args := []string{"--parsable"}
	if opts.CPUsPerTask > 0 {
		args = append(args, fmt.Sprintf("--cpus-per-task=%d", opts.CPUsPerTask))
	}
	if opts.MemPerCPU != "" {
		args = append(args, "--mem-per-cpu="+opts.MemPerCPU)
	}
	if opts.JobName != "" {
		args = append(args, "--job-name="+opts.JobName)
	}
	if opts.Comment != "" {
		args = append(args, "--comment="+opts.Comment)
	}
	if opts.Output != "" {
		args = append(args, "--output="+opts.Output)
	}
	if opts.Dependency != "" {
		args = append(args, "--dependency="+opts.Dependency)
	}
	if opts.TimeLimit != "" {
		args = append(args, "--time="+opts.TimeLimit)
	}
	args = append(args, "--wrap", command)

	ctxlog.FromContext(ctx).Debug("Submitting batch job.", "args", args)
	out, err := exec.CommandContext(ctx, "sbatch", args...).Output()
	if err != nil {
		return "", fmt.Errorf("sbatch: %w", err)
	}

	// With --parsable the output is "<jobid>[;<cluster>]"; fall back to the
	// human-readable form for older slurm versions.
	text := strings.TrimSpace(string(out))
	if id, _, ok := strings.Cut(text, ";"); ok || id != "" {
		if !strings.Contains(id, " ") {
			return id, nil
		}
	}
	if m := submittedJobRe.FindStringSubmatch(text); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("sbatch: cannot parse job id from %q", text)
}

func (CLI) Accounting(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "sacct", args...).Output()
	if err != nil {
		return "", fmt.Errorf("sacct: %w", err)
	}
	return string(out), nil
}
