// Command practice runs one of the practice jobs.
//
// Usage:
//
//	practice [flags] [jobName] [key=value ...]
//	practice -restart <executionID>
//	practice -list
//
// Parameters take an optional type, as in targetDate(date)=2024-06-01. The process exits
// with 0 when the job completed, 1 when it failed, 2 when it could not be launched and
// 3 when it was stopped.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	"go.uber.org/fx"

	practicejob "github.com/tigerroll/chunkflow/example/practice/internal/job"
	usecase "github.com/tigerroll/chunkflow/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

//go:embed resources/jobs.yaml
var embeddedJSL []byte

const dataDirEnv = "PRACTICE_DATA_DIR"

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	var (
		envFile  = flag.String("env", envOr("ENV_FILE_PATH", ".env"), "path of the .env file")
		dataDir  = flag.String("data", envOr(dataDirEnv, "data"), "directory of the input and output files")
		parquet  = flag.String("parquet", "", "Parquet file flatFileJob writes salaries to, local path or gs://bucket/object")
		database = flag.String("db", "practice", "database connection used by plainTextJob")
		restart  = flag.String("restart", "", "restart the FAILED or STOPPED execution with this id")
		list     = flag.Bool("list", false, "list the registered jobs and exit")
	)
	flag.Parse()
	// Definitions and application.yaml refer to the data directory as ${PRACTICE_DATA_DIR}.
	if err := os.Setenv(dataDirEnv, *dataDir); err != nil {
		logger.Fatalf("Failed to set %s: %v", dataDirEnv, err)
	}

	settings := practicejob.Settings{DataDir: *dataDir, SalaryParquet: *parquet, Database: *database}
	var cmd commands
	app := fx.New(append(applicationOptions(*envFile, settings), fx.Populate(&cmd))...)
	if err := app.Err(); err != nil {
		logger.Errorf("Application could not be assembled: %v", err)
		os.Exit(usecase.ExitCodeLaunch)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		logger.Errorf("Application failed to start: %v", err)
		os.Exit(usecase.ExitCodeLaunch)
	}

	code := run(cmd, *list, *restart, flag.Args())

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Application did not stop cleanly: %v", err)
	}
	_ = logger.Sync()
	os.Exit(code)
}

func run(cmd commands, list bool, restartID string, args []string) int {
	ctx := context.Background()
	if list {
		names, err := cmd.Explorer.GetJobNames(ctx)
		if err != nil {
			logger.Errorf("Failed to list jobs: %v", err)
			return usecase.ExitCodeOther
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return usecase.ExitCodeCompleted
	}

	stopOnSignal(cmd)

	if restartID != "" {
		je, err := cmd.Operator.Restart(ctx, restartID)
		return report(je, err)
	}

	jobName := cmd.Config.Chunkflow.Batch.JobName
	if len(args) > 0 {
		jobName, args = args[0], args[1:]
	}
	if jobName == "" {
		logger.Errorf("No job named on the command line and batch.jobName is empty.")
		return usecase.ExitCodeLaunch
	}
	params, err := model.ParseJobParameters(args)
	if err != nil {
		logger.Errorf("Invalid job parameters: %v", err)
		return usecase.ExitCodeLaunch
	}

	logger.Infof("Launching job '%s' with parameters %s.", jobName, params.String())
	je, err := cmd.Launcher.Launch(ctx, jobName, params)
	return report(je, err)
}

// stopOnSignal asks the operator to stop every running execution on SIGINT or SIGTERM.
// The executions end as STOPPED after their current chunk and can be restarted.
func stopOnSignal(cmd commands) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigs {
			logger.Warnf("Received signal '%v'. Stopping running executions.", sig)
			for _, id := range cmd.Launcher.RunningExecutionIDs() {
				if err := cmd.Operator.Stop(context.Background(), id); err != nil {
					logger.Errorf("Failed to stop execution %s: %v", id, err)
				}
			}
		}
	}()
}

func report(je *model.JobExecution, err error) int {
	if err != nil {
		logger.Errorf("Job could not be launched: %v", err)
		return usecase.ExitCodeFor(nil, err)
	}
	logger.Infof("Job '%s' (execution %s) finished: status=%s exitStatus=%s.", je.JobName, je.ID, je.Status, je.ExitStatus.ExitCode)
	for _, se := range je.StepExecutions() {
		logger.Infof("  %s", se.Summary())
	}
	return usecase.ExitCodeFor(je, nil)
}
