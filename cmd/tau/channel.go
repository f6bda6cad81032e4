package main

import (
	"fmt"

	"github.com/cuemby/tau/pkg/channelstore"
	"github.com/spf13/cobra"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Inspect a transport channel's log, context, artifact, and memory records",
}

var channelMemoryCmd = &cobra.Command{
	Use:   "memory ROOT TRANSPORT CHANNEL_ID",
	Short: "Print a channel's current memory.md snapshot",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, transport, channelID := args[0], args[1], args[2]
		store, err := channelstore.Open(root, transport, channelID)
		if err != nil {
			return fmt.Errorf("failed to open channel: %v", err)
		}
		memory, err := store.LoadMemory()
		if err != nil {
			return fmt.Errorf("failed to load memory: %v", err)
		}
		if memory == "" {
			fmt.Println("No memory recorded for this channel")
			return nil
		}
		fmt.Println(memory)
		return nil
	},
}

var channelArtifactsCmd = &cobra.Command{
	Use:   "artifacts ROOT TRANSPORT CHANNEL_ID",
	Short: "List recorded artifacts for a channel, tolerating malformed lines",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, transport, channelID := args[0], args[1], args[2]
		store, err := channelstore.Open(root, transport, channelID)
		if err != nil {
			return fmt.Errorf("failed to open channel: %v", err)
		}
		records, malformed, err := store.LoadArtifactRecordsTolerant()
		if err != nil {
			return fmt.Errorf("failed to load artifacts: %v", err)
		}
		if len(records) == 0 {
			fmt.Println("No artifacts recorded for this channel")
		} else {
			fmt.Printf("%-20s %-10s %-10s %s\n", "TYPE", "SIZE", "SOURCE", "PATH")
			for _, record := range records {
				fmt.Printf("%-20s %-10d %-10s %s\n", record.Type, record.SizeBytes, record.SourceEventKey, record.RelativePath)
			}
		}
		if malformed > 0 {
			fmt.Printf("(%d malformed artifact lines skipped)\n", malformed)
		}
		return nil
	},
}

var channelDirCmd = &cobra.Command{
	Use:   "dir ROOT TRANSPORT CHANNEL_ID",
	Short: "Print the on-disk directory backing a channel",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, transport, channelID := args[0], args[1], args[2]
		store, err := channelstore.Open(root, transport, channelID)
		if err != nil {
			return fmt.Errorf("failed to open channel: %v", err)
		}
		fmt.Println(store.Dir())
		return nil
	},
}

func init() {
	channelCmd.AddCommand(channelMemoryCmd)
	channelCmd.AddCommand(channelArtifactsCmd)
	channelCmd.AddCommand(channelDirCmd)
}
