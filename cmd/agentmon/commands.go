package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agenticscrum/agentmon/pkg/client"
)

type apiFlags struct {
	url     string
	timeout time.Duration
}

func (f *apiFlags) client() *client.Client {
	return client.New(client.Config{BaseURL: f.url, Timeout: f.timeout})
}

func newRegisterCmd(api *apiFlags) *cobra.Command {
	var (
		pid       int
		agentType string
		storyID   string
		sessionID string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an already-spawned agent process",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := api.client().Register(context.Background(), pid, agentType, storyID, sessionID)
			if err != nil {
				return err
			}
			fmt.Printf("registered %s (pid %d)\n", res.SessionID, res.PID)
			if !res.Sampled {
				fmt.Println("warning: initial metric sample unavailable")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pid, "pid", 0, "process id to supervise")
	cmd.Flags().StringVar(&agentType, "type", "", "agent type label")
	cmd.Flags().StringVar(&storyID, "story", "", "work item reference")
	cmd.Flags().StringVar(&sessionID, "session", "", "unique session id")
	_ = cmd.MarkFlagRequired("pid")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newHeartbeatCmd(api *apiFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heartbeat <session>",
		Short: "Report liveness and record a metric sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := api.client().Heartbeat(context.Background(), args[0])
			if err != nil {
				return err
			}
			if res.Metrics != nil {
				fmt.Printf("%s: %s cpu=%.1f%% mem=%.1fMB fds=%d\n",
					res.SessionID, res.Status, res.Metrics.CPUPercent, res.Metrics.MemoryMB, res.Metrics.NumFDs)
			} else {
				fmt.Printf("%s: %s\n", res.SessionID, res.Status)
			}
			return nil
		},
	}
	return cmd
}

func newListCmd(api *apiFlags) *cobra.Command {
	var includeDead bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List supervised agents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := api.client().List(context.Background(), includeDead)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tPID\tTYPE\tSTORY\tSTATUS\tUPTIME\tCPU%\tMEM(MB)")
			for _, a := range agents {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%.0fm\t%.1f\t%.1f\n",
					a.SessionID, a.PID, a.AgentType, a.StoryID, a.Status,
					a.UptimeMinutes, a.CPUPercent, a.MemoryMB)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&includeDead, "all", false, "include dead and terminated sessions")
	return cmd
}

func newMetricsCmd(api *apiFlags) *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "metrics <session>",
		Short: "Show aggregate metrics, recent samples and events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := api.client().Metrics(context.Background(), args[0], minutes)
			if err != nil {
				return err
			}
			a := rep.Agent
			fmt.Printf("%s (pid %d, %s) status=%s stored=%s uptime=%.0fm\n",
				a.SessionID, a.PID, a.AgentType, a.Status, a.StoredStatus, a.UptimeMinutes)
			s := rep.Stats
			fmt.Printf("window %dm: %d samples, cpu avg=%.1f%% max=%.1f%%, mem avg=%.1fMB max=%.1fMB\n",
				rep.WindowMinutes, s.SampleCount, s.AvgCPU, s.MaxCPU, s.AvgMemoryMB, s.MaxMemoryMB)
			for _, ev := range rep.Events {
				fmt.Printf("  %s  %-12s %s\n", ev.Timestamp.Format(time.RFC3339), ev.Type, ev.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 0, "trailing aggregation window (0 = default)")
	return cmd
}

func newTerminateCmd(api *apiFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "terminate <session>",
		Short: "Stop an agent process (graceful, then kill with --force)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := api.client().Terminate(context.Background(), args[0], force)
			if err != nil {
				return err
			}
			fmt.Println(res.Message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "escalate to kill if still alive after the grace period")
	return cmd
}

func newLogsCmd(api *apiFlags) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <session>",
		Short: "Tail an agent's log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := api.client().Logs(context.Background(), args[0], lines)
			if err != nil {
				return err
			}
			fmt.Println(res.Content)
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 0, "number of trailing lines (0 = default 100)")
	return cmd
}

func newEventCmd(api *apiFlags) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "event <session> <type>",
		Short: "Append a custom event to an agent's audit trail",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.client().AppendEvent(context.Background(), args[0], args[1], message)
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "event message")
	return cmd
}

func newCleanupCmd(api *apiFlags) *cobra.Command {
	var olderThan string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge dead and terminated sessions past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, err := strconv.ParseFloat(olderThan, 64)
			if err != nil || hours < 0 {
				return fmt.Errorf("invalid --older-than-hours %q", olderThan)
			}
			res, err := api.client().Cleanup(context.Background(), hours)
			if err != nil {
				return err
			}
			fmt.Printf("cleaned %d sessions\n", res.CleanedCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&olderThan, "older-than-hours", "24", "retention window in hours")
	return cmd
}
