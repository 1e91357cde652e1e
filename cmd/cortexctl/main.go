// Command cortexctl is a thin debugging CLI over the memory
// orchestration engine: it opens a local SQLite-backed store and drives
// remember/recall/forget against it.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/cortex/internal/storage"
	"github.com/kittclouds/cortex/pkg/belief"
	"github.com/kittclouds/cortex/pkg/cortex"
	"github.com/kittclouds/cortex/pkg/graphmirror"
	"github.com/kittclouds/cortex/pkg/orchestrator"
	"github.com/kittclouds/cortex/pkg/recall"
)

var flags struct {
	dbPath        string
	memorySpaceID string
}

func main() {
	root := &cobra.Command{
		Use:   "cortexctl",
		Short: "Debug and drive the memory orchestration engine from the command line",
	}
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "cortex.db", "path to the SQLite database file")
	root.PersistentFlags().StringVar(&flags.memorySpaceID, "space", "default", "memory space id to operate in")

	root.AddCommand(rememberCmd(), recallCmd(), forgetCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newEngine() (*storage.Store, *orchestrator.Orchestrator, *recall.Engine, error) {
	log := zap.NewExample().Sugar()
	cfg, err := cortex.LoadConfig(nil)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := storage.Open(flags.dbPath, log)
	if err != nil {
		return nil, nil, nil, err
	}
	beliefEngine := belief.New(store, cfg.BeliefRevisionSlotMatch, nil)
	mirror := graphmirror.New(nil, log)
	orch := orchestrator.New(store, beliefEngine, mirror, nil, nil, nil, cfg, log)
	recallEngine := recall.New(store, mirror, nil)
	return store, orch, recallEngine, nil
}

func rememberCmd() *cobra.Command {
	var userMsg, agentMsg, userID, conversationID string
	cmd := &cobra.Command{
		Use:   "remember",
		Short: "Append a user/agent turn and run the remember state machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, orch, _, err := newEngine()
			if err != nil {
				return err
			}
			defer store.Close()
			result, err := orch.Remember(cmd.Context(), orchestrator.RememberRequest{
				MemorySpaceID:  flags.memorySpaceID,
				ConversationID: conversationID,
				UserID:         userID,
				UserMessage:    userMsg,
				AgentMessage:   agentMsg,
			})
			if err != nil {
				return err
			}
			fmt.Printf("orchestration %s complete in %dms, created: %v\n", result.OrchestrationID, result.TotalLatencyMs, result.CreatedIDs)
			return nil
		},
	}
	cmd.Flags().StringVar(&userMsg, "user-message", "", "the user's turn text")
	cmd.Flags().StringVar(&agentMsg, "agent-message", "", "the agent's turn text")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "existing conversation id, empty to create one")
	return cmd
}

func recallCmd() *cobra.Command {
	var query string
	var limit int
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Run multi-strategy recall against a memory space",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, recallEngine, err := newEngine()
			if err != nil {
				return err
			}
			defer store.Close()
			result, err := recallEngine.Recall(cmd.Context(), recall.Request{
				MemorySpaceID: flags.memorySpaceID,
				Query:         query,
				Limit:         limit,
			})
			if err != nil {
				return err
			}
			for _, item := range result.Items {
				fmt.Printf("[%s %.3f] %s: %s\n", item.Layer, item.Score, item.ID, item.Content)
			}
			for source, errMsg := range result.SourceFailures {
				fmt.Fprintf(os.Stderr, "source %s failed: %s\n", source, errMsg)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "free-text recall query")
	cmd.Flags().IntVar(&limit, "limit", 10, "max results")
	return cmd
}

func forgetCmd() *cobra.Command {
	var target, targetKind string
	var archiveOnly, deleteFacts, deleteConversation bool
	cmd := &cobra.Command{
		Use:   "forget",
		Short: "Delete or archive a target and its dependents",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, orch, _, err := newEngine()
			if err != nil {
				return err
			}
			defer store.Close()
			summary, err := orch.Forget(cmd.Context(), flags.memorySpaceID, target, orchestrator.ForgetOptions{
				Target:             orchestrator.TargetKind(targetKind),
				ArchiveOnly:        archiveOnly,
				DeleteFacts:        deleteFacts,
				DeleteConversation: deleteConversation,
				Now:                time.Now().UnixMilli(),
			})
			if err != nil {
				return err
			}
			fmt.Printf("deleted: conversations=%d memories=%d facts=%d contexts=%d\n",
				summary.DeletedConversations, summary.DeletedMemories, summary.DeletedFacts, summary.DeletedContexts)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "id", "", "target id")
	cmd.Flags().StringVar(&targetKind, "kind", "memory", "target kind: memory|fact|conversation|context|user")
	cmd.Flags().BoolVar(&archiveOnly, "archive-only", false, "archive instead of physically deleting")
	cmd.Flags().BoolVar(&deleteFacts, "delete-facts", false, "cascade to facts sourced from the target")
	cmd.Flags().BoolVar(&deleteConversation, "delete-conversation", false, "cascade to the target's owning conversation")
	return cmd
}
