package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"montage/internal/jobs"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a render job from a JSON file",
	Long: `Submit posts a job document (flat or timeline) to the API. Use "-f -" to
read the document from stdin. With --wait the command polls until the job
is done or failed and exits non-zero on failure.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		wait, _ := cmd.Flags().GetBool("wait")
		interval, _ := cmd.Flags().GetDuration("interval")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		if file == "" {
			return fmt.Errorf("--file is required")
		}
		body, err := readDocument(cmd, file)
		if err != nil {
			return err
		}
		if !json.Valid(body) {
			return fmt.Errorf("%s is not valid JSON", file)
		}

		client := NewClient(viper.GetString("url"))
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		job, err := client.SubmitJob(ctx, body)
		if err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}
		cmd.Printf("Job submitted\nID:     %s\nMode:   %s\nStatus: %s\n", job.ID, job.Mode, job.State)

		if !wait {
			return nil
		}

		final, err := waitForJob(ctx, client, job.ID, interval, timeout, func(j *jobs.Job) {
			cmd.Printf("  %-12s %3d%%\n", j.State, j.Progress)
		})
		if err != nil {
			return err
		}
		printJob(cmd, final)
		if final.State == jobs.StateError {
			return fmt.Errorf("job %s failed", final.ID)
		}
		return nil
	},
}

func readDocument(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	body, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return body, nil
}

// waitForJob polls until the job is terminal. onChange sees every distinct
// state/progress pair.
func waitForJob(ctx context.Context, c *Client, id string, interval, timeout time.Duration, onChange func(*jobs.Job)) (*jobs.Job, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastState jobs.State
	lastProgress := -1
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("poll %s: %w", id, err)
		}
		if job.State != lastState || job.Progress != lastProgress {
			lastState, lastProgress = job.State, job.Progress
			if onChange != nil {
				onChange(job)
			}
		}
		if job.State.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up waiting for %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringP("file", "f", "", "job document (JSON), - for stdin")
	submitCmd.Flags().Bool("wait", false, "poll until the job finishes")
	submitCmd.Flags().Duration("interval", 2*time.Second, "poll interval with --wait")
	submitCmd.Flags().Duration("timeout", 0, "give up waiting after this long (0 waits forever)")
}
