package main

import (
	"fmt"
	"strconv"

	"github.com/cuemby/tau/pkg/session"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and mutate a conversation session store",
}

var sessionInitCmd = &cobra.Command{
	Use:   "init PATH",
	Short: "Ensure a session file exists, optionally seeding a system prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		systemPrompt, _ := cmd.Flags().GetString("system-prompt")

		store, err := session.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open session: %v", err)
		}
		head, err := store.EnsureInitialized(systemPrompt)
		if err != nil {
			return fmt.Errorf("failed to initialize session: %v", err)
		}
		if head == nil {
			fmt.Println("Session is empty; no system prompt supplied")
			return nil
		}
		fmt.Printf("Session ready, head id: %d\n", *head)
		return nil
	},
}

var sessionAppendCmd = &cobra.Command{
	Use:   "append PATH ROLE TEXT",
	Short: "Append a single text message, optionally chained to a parent id",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, role, text := args[0], args[1], args[2]
		parentFlag, _ := cmd.Flags().GetInt64("parent")

		store, err := session.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open session: %v", err)
		}

		var parentID *uint64
		if parentFlag >= 0 {
			id := uint64(parentFlag)
			parentID = &id
		}

		message := session.Message{
			Role:    session.Role(role),
			Content: []session.ContentBlock{{Kind: "text", Text: text}},
		}
		head, err := store.Append(parentID, []session.Message{message})
		if err != nil {
			return fmt.Errorf("failed to append message: %v", err)
		}
		fmt.Printf("Appended entry %d\n", head)
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show PATH",
	Short: "Print the lineage of messages leading to a head entry (or the latest branch tip)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		headFlag, _ := cmd.Flags().GetInt64("head")

		store, err := session.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open session: %v", err)
		}

		var head *uint64
		if headFlag >= 0 {
			id := uint64(headFlag)
			head = &id
		} else {
			tips := store.BranchTips()
			if len(tips) == 0 {
				fmt.Println("Session has no entries")
				return nil
			}
			last := tips[len(tips)-1].ID
			head = &last
		}

		messages, err := store.LineageMessages(head)
		if err != nil {
			return fmt.Errorf("failed to resolve lineage: %v", err)
		}
		for _, message := range messages {
			for _, block := range message.Content {
				fmt.Printf("[%s] %s\n", message.Role, block.Text)
			}
		}
		return nil
	},
}

var sessionBranchesCmd = &cobra.Command{
	Use:   "branches PATH",
	Short: "List every branch tip entry id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		store, err := session.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open session: %v", err)
		}
		tips := store.BranchTips()
		if len(tips) == 0 {
			fmt.Println("No branch tips")
			return nil
		}
		fmt.Printf("%-10s %-10s %s\n", "ID", "PARENT", "ROLE")
		for _, tip := range tips {
			parent := "-"
			if tip.ParentID != nil {
				parent = strconv.FormatUint(*tip.ParentID, 10)
			}
			fmt.Printf("%-10d %-10s %s\n", tip.ID, parent, tip.Message.Role)
		}
		return nil
	},
}

var sessionRepairCmd = &cobra.Command{
	Use:   "repair PATH",
	Short: "Drop duplicate ids, dangling parents, and cycles from a session file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		store, err := session.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open session: %v", err)
		}
		report, err := store.Repair()
		if err != nil {
			return fmt.Errorf("failed to repair session: %v", err)
		}
		fmt.Printf("✓ Session repaired: removed %d duplicates, %d invalid-parent entries, %d cycle entries\n",
			report.RemovedDuplicates, report.RemovedInvalidParent, report.RemovedCycles)
		return nil
	},
}

var sessionCompactCmd = &cobra.Command{
	Use:   "compact PATH",
	Short: "Rewrite the session file to contain only one branch's lineage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		headFlag, _ := cmd.Flags().GetInt64("head")

		store, err := session.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open session: %v", err)
		}

		var head *uint64
		if headFlag >= 0 {
			id := uint64(headFlag)
			head = &id
		}
		if err := store.CompactToLineage(head); err != nil {
			return fmt.Errorf("failed to compact session: %v", err)
		}
		fmt.Println("✓ Session compacted")
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionInitCmd)
	sessionCmd.AddCommand(sessionAppendCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionBranchesCmd)
	sessionCmd.AddCommand(sessionRepairCmd)
	sessionCmd.AddCommand(sessionCompactCmd)

	sessionInitCmd.Flags().String("system-prompt", "", "System prompt to seed as the root entry")
	sessionAppendCmd.Flags().Int64("parent", -1, "Parent entry id to chain from (-1 for none)")
	sessionShowCmd.Flags().Int64("head", -1, "Head entry id to resolve lineage from (-1 for latest branch tip)")
	sessionCompactCmd.Flags().Int64("head", -1, "Preferred head entry id to keep (-1 for latest entry)")
}
