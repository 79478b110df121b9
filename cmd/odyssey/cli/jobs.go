package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/jobs"
)

// JobsCLI enqueues maintenance jobs by hand and reports on the worker queue.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI connects to the queue behind opts.
func NewJobsCLI(opts asynq.RedisClientOpt) (*JobsCLI, error) {
	if opts.Addr == "" {
		return nil, errors.New("jobs: redis address required")
	}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	return errors.Join(c.inspector.Close(), c.client.Close())
}

// Trigger enqueues the maintenance job name with its default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskLowStockScan:
		task = jobs.NewLowStockScanTask()
	case jobs.TaskIdempotencyCleanup:
		task, err = jobs.NewIdempotencyCleanupTask(0)
	case jobs.TaskLotExpiryScan:
		task, err = jobs.NewLotExpiryScanTask(0)
	default:
		return nil, fmt.Errorf("jobs: %q cannot be triggered by hand", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises one queue.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports queue, the default queue when empty.
func (c *JobsCLI) InspectQueue(queue string) (QueueStats, error) {
	if queue == "" {
		queue = jobs.QueueDefault
	}
	info, err := c.inspector.GetQueueInfo(queue)
	if err != nil {
		return QueueStats{}, err
	}
	return QueueStats{
		Queue:     queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
	}, nil
}

// ListScheduled returns the first size scheduled tasks of the default queue.
func (c *JobsCLI) ListScheduled(size int) ([]*asynq.TaskInfo, error) {
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// JobsOptions defines the arguments of the jobs command.
type JobsOptions struct {
	Command string
	Args    []string
	Stdout  io.Writer
	Stderr  io.Writer
}

// JobsCommand runs one of trigger <task>, inspect [queue] or
// scheduled [size] and returns the process exit code.
func JobsCommand(ctx context.Context, c *JobsCLI, opts JobsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	arg := func() string {
		if len(opts.Args) > 0 {
			return opts.Args[0]
		}
		return ""
	}
	switch opts.Command {
	case "trigger", "inspect", "scheduled":
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "jobs: unknown command %q (want trigger, inspect or scheduled)\n", opts.Command)
		return 2
	}
	if len(opts.Args) > 1 || (opts.Command == "trigger" && len(opts.Args) != 1) {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs %s: unexpected arguments %v\n", opts.Command, opts.Args)
		return 2
	}
	if c == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "jobs: queue not configured")
		return 1
	}

	switch opts.Command {
	case "trigger":
		info, err := c.Trigger(ctx, arg())
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "inspect":
		stats, err := c.InspectQueue(arg())
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs inspect: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(opts.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "scheduled":
		size := 0
		if raw := arg(); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				_, _ = fmt.Fprintf(opts.Stderr, "jobs scheduled: invalid size %q\n", raw)
				return 2
			}
			size = n
		}
		tasks, err := c.ListScheduled(size)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		for _, task := range tasks {
			_, _ = fmt.Fprintf(opts.Stdout, "%s %s next=%s\n", task.ID, task.Type, task.NextProcessAt.UTC().Format("2006-01-02T15:04:05Z"))
		}
	}
	return 0
}
