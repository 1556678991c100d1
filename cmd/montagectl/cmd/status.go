package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"montage/internal/jobs"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get status of a render job",
	Long:  `Print the current state, progress and, once finished, the result URL or error of a job.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		job, err := NewClient(viper.GetString("url")).GetJob(ctx, args[0])
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
		printJob(cmd, job)
		return nil
	},
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func printJob(cmd *cobra.Command, job *jobs.Job) {
	cmd.Printf("%s %sJob Details%s\n", statusIcon(job.State), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.ID)
	if job.ProjectID != "" {
		cmd.Printf("%sProject:%s     %s\n", colorDim, colorReset, job.ProjectID)
	}
	cmd.Printf("%sMode:%s        %s\n", colorDim, colorReset, job.Mode)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(job.State))
	cmd.Printf("%sProgress:%s    %d%%\n", colorDim, colorReset, job.Progress)

	if job.Result != nil {
		cmd.Printf("%sURL:%s         %s%s%s\n", colorDim, colorReset, colorCyan, job.Result.URL, colorReset)
		if job.Result.DurationSeconds > 0 {
			cmd.Printf("%sDuration:%s    %.1fs\n", colorDim, colorReset, job.Result.DurationSeconds)
		}
		if job.Result.SizeBytes > 0 {
			cmd.Printf("%sSize:%s        %s\n", colorDim, colorReset, formatBytes(job.Result.SizeBytes))
		}
	}
	if job.Error != "" {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, job.Error, colorReset)
	}
	if !job.CreatedAt.IsZero() {
		cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, job.CreatedAt.Format(time.RFC1123))
	}
	if job.State.Terminal() && !job.CreatedAt.IsZero() && !job.UpdatedAt.IsZero() {
		cmd.Printf("%sTook:%s        %s\n", colorDim, colorReset, formatDuration(job.UpdatedAt.Sub(job.CreatedAt)))
	}
}

func statusIcon(state jobs.State) string {
	switch state {
	case jobs.StateDone:
		return colorGreen + "✓" + colorReset
	case jobs.StateError:
		return colorRed + "✗" + colorReset
	case jobs.StateQueued:
		return colorCyan + "◯" + colorReset
	default:
		return colorYellow + "⏳" + colorReset
	}
}

func colorizeStatus(state jobs.State) string {
	color := colorYellow
	switch state {
	case jobs.StateDone:
		color = colorGreen
	case jobs.StateError:
		color = colorRed
	case jobs.StateQueued:
		color = colorCyan
	}
	return statusIcon(state) + " " + color + string(state) + colorReset
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
