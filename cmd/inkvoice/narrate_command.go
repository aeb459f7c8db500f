package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"inkvoice/internal/api"
	"inkvoice/internal/queue"
)

func newNarrateCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var speechID string

	cmd := &cobra.Command{
		Use:   "narrate <chapter-id>",
		Short: "Queue narration for a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				job, err := api.NewNarrationService(store).Start(cmd.Context(), args[0], api.StartOptions{
					ForceRegenerate: force,
					SpeechID:        speechID,
				})
				if errors.Is(err, queue.ErrAlreadyInProgress) {
					return fmt.Errorf("chapter %s already has an open narration job", args[0])
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Queued narration job %d for chapter %s\n", job.ID, job.ChapterID)
				if speechID != "" {
					fmt.Fprintf(out, "Restricted to speech %s\n", speechID)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Regenerate artifacts even when current ones exist")
	cmd.Flags().StringVar(&speechID, "speech", "", "Narrate a single speech instead of the whole chapter")
	return cmd
}

func newAssembleCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "assemble <chapter-id>",
		Short: "Queue audio assembly for a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				job, err := api.NewAssemblyService(store).Process(cmd.Context(), args[0], force)
				if errors.Is(err, queue.ErrAlreadyInProgress) {
					return fmt.Errorf("chapter %s already has an open assembly job", args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued assembly job %d for chapter %s\n", job.ID, job.ChapterID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-encode variants even when current ones exist")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "cancel <chapter-id>",
		Short: "Cancel the open job for a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := jobKindFromFlag(kindFlag)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				outcome, job, err := store.RequestCancel(cmd.Context(), kind, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch outcome {
				case queue.CancelApplied:
					fmt.Fprintf(out, "Cancelled job %d\n", job.ID)
				case queue.CancelRequestedOutcome:
					fmt.Fprintf(out, "Cancel requested for running job %d\n", job.ID)
				default:
					fmt.Fprintf(out, "No open %s job for chapter %s\n", kind, args[0])
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", string(queue.KindNarration), "Job kind to cancel (narration or assembly)")
	return cmd
}

func jobKindFromFlag(value string) (queue.JobKind, error) {
	switch queue.JobKind(value) {
	case queue.KindNarration, queue.KindAssembly:
		return queue.JobKind(value), nil
	default:
		return "", fmt.Errorf("unknown job kind %q", value)
	}
}
