package main

import (
	"fmt"

	"github.com/cuemby/tau/pkg/metrics"
	"github.com/cuemby/tau/pkg/tool"
	"github.com/spf13/cobra"
)

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Run a sandboxed tool against the local filesystem or shell",
}

func loadToolPolicy(cmd *cobra.Command) (tool.Policy, error) {
	allowedRoots, _ := cmd.Flags().GetStringSlice("allowed-root")
	profile, _ := cmd.Flags().GetString("bash-profile")

	policy := tool.NewPolicy(allowedRoots)
	switch profile {
	case "", "balanced":
		policy.SetBashProfile(tool.ProfileBalanced)
	case "strict":
		policy.SetBashProfile(tool.ProfileStrict)
	case "permissive":
		policy.SetBashProfile(tool.ProfilePermissive)
	default:
		return tool.Policy{}, fmt.Errorf("unknown bash profile %q", profile)
	}
	return policy, nil
}

var toolBashCmd = &cobra.Command{
	Use:   "bash COMMAND",
	Short: "Run a shell command under the sandboxed bash tool policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := args[0]
		cwd, _ := cmd.Flags().GetString("cwd")

		policy, err := loadToolPolicy(cmd)
		if err != nil {
			return err
		}

		result, err := tool.Bash(policy, command, cwd)
		if err != nil {
			metrics.ToolInvocationsTotal.WithLabelValues("bash", "rejected").Inc()
			return fmt.Errorf("bash tool rejected command: %v", err)
		}

		status := "success"
		if !result.Success {
			status = "failure"
		}
		metrics.ToolInvocationsTotal.WithLabelValues("bash", status).Inc()

		if result.Stdout != "" {
			fmt.Print(result.Stdout)
		}
		if result.Stderr != "" {
			fmt.Print(result.Stderr)
		}
		fmt.Printf("(exit %d)\n", result.StatusCode)
		return nil
	},
}

var toolReadCmd = &cobra.Command{
	Use:   "read PATH",
	Short: "Read a file through the sandboxed file tool policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := loadToolPolicy(cmd)
		if err != nil {
			return err
		}
		result, err := tool.Read(policy, args[0])
		if err != nil {
			metrics.ToolInvocationsTotal.WithLabelValues("read", "rejected").Inc()
			return fmt.Errorf("read tool rejected path: %v", err)
		}
		metrics.ToolInvocationsTotal.WithLabelValues("read", "success").Inc()
		fmt.Print(result.Content)
		return nil
	},
}

var toolWriteCmd = &cobra.Command{
	Use:   "write PATH CONTENT",
	Short: "Write a file through the sandboxed file tool policy",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := loadToolPolicy(cmd)
		if err != nil {
			return err
		}
		result, err := tool.Write(policy, args[0], args[1])
		if err != nil {
			metrics.ToolInvocationsTotal.WithLabelValues("write", "rejected").Inc()
			return fmt.Errorf("write tool rejected path: %v", err)
		}
		metrics.ToolInvocationsTotal.WithLabelValues("write", "success").Inc()
		fmt.Printf("✓ Wrote %d bytes to %s\n", result.BytesWritten, result.Path)
		return nil
	},
}

var toolEditCmd = &cobra.Command{
	Use:   "edit PATH FIND REPLACE",
	Short: "Replace a string inside a file through the sandboxed file tool policy",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		policy, err := loadToolPolicy(cmd)
		if err != nil {
			return err
		}
		result, err := tool.Edit(policy, args[0], args[1], args[2], all)
		if err != nil {
			metrics.ToolInvocationsTotal.WithLabelValues("edit", "rejected").Inc()
			return fmt.Errorf("edit tool rejected request: %v", err)
		}
		metrics.ToolInvocationsTotal.WithLabelValues("edit", "success").Inc()
		fmt.Printf("✓ Replaced %d occurrence(s) in %s\n", result.Replacements, result.Path)
		return nil
	},
}

func init() {
	toolCmd.AddCommand(toolBashCmd)
	toolCmd.AddCommand(toolReadCmd)
	toolCmd.AddCommand(toolWriteCmd)
	toolCmd.AddCommand(toolEditCmd)

	toolCmd.PersistentFlags().StringSlice("allowed-root", nil, "Restrict tool filesystem access to these roots (repeatable)")
	toolCmd.PersistentFlags().String("bash-profile", "balanced", "Bash allowlist profile: permissive, balanced, strict")
	toolBashCmd.Flags().String("cwd", ".", "Working directory for the command")
	toolEditCmd.Flags().Bool("all", false, "Replace every occurrence instead of just the first")
}
