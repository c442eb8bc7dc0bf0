package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grimoire-ai/grimoire/internal/chat"
)

var askFlags struct {
	topK      int
	threshold float64
	category  string
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a rules question and stream the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		service, pool, err := buildChatService(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		question := strings.Join(args, " ")
		events := service.Chat(ctx, chat.Request{
			Message:   question,
			TopK:      askFlags.topK,
			Threshold: askFlags.threshold,
			Category:  askFlags.category,
		})

		out := cmd.OutOrStdout()
		var sources []chat.Source
		for ev := range events {
			switch ev := ev.(type) {
			case chat.Sources:
				sources = ev.Sources
			case chat.Token:
				fmt.Fprint(out, ev.Text)
			case chat.Done:
				fmt.Fprintln(out)
				if len(sources) == 0 {
					fmt.Fprintln(out, "\n(no matching rules found)")
					continue
				}
				fmt.Fprintln(out, "\nSources:")
				for _, s := range sources {
					fmt.Fprintf(out, "  - %s [%s, %s] %.2f\n", s.Title, s.Category, s.Source, s.Similarity)
				}
			case chat.Error:
				return fmt.Errorf("%s", ev.Message)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().IntVar(&askFlags.topK, "top-k", 0, "maximum retrieved chunks (default from config)")
	askCmd.Flags().Float64Var(&askFlags.threshold, "threshold", 0, "similarity floor (default from config)")
	askCmd.Flags().StringVar(&askFlags.category, "category", "", "restrict retrieval to one category")
	rootCmd.AddCommand(askCmd)
}
