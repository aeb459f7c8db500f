package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"inkvoice/internal/library"
	"inkvoice/internal/logging"
	"inkvoice/internal/preview"
	"inkvoice/internal/tts"
)

func newVoicesCommand(ctx *commandContext) *cobra.Command {
	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "Browse and preview synthesis voices",
	}

	voicesCmd.AddCommand(newVoicesListCommand(ctx))
	voicesCmd.AddCommand(newVoicesPreviewCommand(ctx))

	return voicesCmd
}

func newVoicesListCommand(ctx *commandContext) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			provider, err := tts.NewProvider(cfg, logging.NewNop())
			if err != nil {
				return err
			}
			catalog := tts.NewCatalogFromConfig(cfg, provider)

			voices, err := catalog.Voices(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			if len(voices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No voices available")
				return nil
			}

			rows := make([][]string, 0, len(voices))
			for _, voice := range voices {
				rows = append(rows, []string{
					voice.ID,
					voice.Name,
					voice.LanguageCode,
					titleCaser.String(voice.Gender),
					voice.Description,
				})
			}
			table := renderTable(
				[]string{"ID", "Name", "Language", "Gender", "Description"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the cached voice catalog")
	return cmd
}

func newVoicesPreviewCommand(ctx *commandContext) *cobra.Command {
	var characterID string
	var sampleText string
	var outPath string

	cmd := &cobra.Command{
		Use:   "preview [voice-id]",
		Short: "Generate a short voice sample",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && strings.TrimSpace(characterID) == "" {
				return errors.New("provide a voice id or --character")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			provider, err := tts.NewProvider(cfg, logging.NewNop())
			if err != nil {
				return err
			}
			catalog, err := library.Open(cfg)
			if err != nil {
				return err
			}
			defer catalog.Close()

			cache := preview.NewCache(cfg, catalog, provider, logging.NewNop())

			var sample preview.Sample
			if len(args) > 0 {
				sample, err = cache.ForVoice(cmd.Context(), args[0], sampleText)
			} else {
				sample, err = cache.ForCharacter(cmd.Context(), characterID, sampleText)
			}
			if err != nil {
				return err
			}

			target := strings.TrimSpace(outPath)
			if target == "" {
				target = fmt.Sprintf("preview-%s.%s", sample.VoiceID, sample.Format)
			}
			if err := os.WriteFile(target, sample.Data, 0o644); err != nil {
				return fmt.Errorf("write preview: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s preview for voice %s to %s\n", sample.Format, sample.VoiceID, target)
			if sample.Cached {
				fmt.Fprintln(out, "Served from cache")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&characterID, "character", "", "Preview the voice assigned to a character")
	cmd.Flags().StringVar(&sampleText, "text", "", "Sample text to speak (defaults to a stock phrase)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file path")
	return cmd
}
