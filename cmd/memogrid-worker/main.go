// The memogrid-worker binary is the job-side entrypoint on the cluster. The
// main job invocation is `memogrid-worker PAYLOAD`; the check job invocation
// is `memogrid-worker -check=JOBID PAYLOAD`. Experiment functions must be
// registered in slurm.DefaultRegistry by the package that links this binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vk/memogrid/internal/ctxlog"
	"github.com/vk/memogrid/internal/slurm"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, args []string) error {
	flagSet := flag.NewFlagSet("memogrid-worker", flag.ContinueOnError)
	checkFlag := flagSet.String("check", "", "Native job id to check; omitted for the main job.")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("usage: memogrid-worker [-check=JOBID] PAYLOAD")
	}
	payloadPath := flagSet.Arg(0)

	workerCommand := os.Getenv("MEMOGRID_WORKER_CMD")
	if workerCommand == "" {
		workerCommand = os.Args[0]
	}

	ctx := ctxlog.WithLogger(context.Background(), logger)
	adapter := slurm.NewAdapter(slurm.DefaultRegistry, filepath.Dir(payloadPath), workerCommand, nil)

	if *checkFlag != "" {
		return adapter.RunCheck(ctx, payloadPath, *checkFlag)
	}
	return adapter.RunMain(ctx, payloadPath)
}
