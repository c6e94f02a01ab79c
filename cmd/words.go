package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/burstline/internal/config"
	"github.com/xkilldash9x/burstline/internal/observability"
	"github.com/xkilldash9x/burstline/internal/query"
	"github.com/xkilldash9x/burstline/internal/words"
)

func newWordsCmd(a *app) *cobra.Command {
	var samples int
	var seed uint64

	wordsCmd := &cobra.Command{
		Use:   "words",
		Short: "Fetch the word pool and print sample queries without opening a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.BindEnv(a.v)
			var cfg config.Config
			if err := a.v.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("error unmarshaling config: %w", err)
			}
			if cfg.Words.Keyword == "" && cfg.Words.File == "" {
				return fmt.Errorf("%w: KEYWORD_SEARCH (words.keyword) or words.file is required", config.ErrInvalidConfig)
			}

			pool, err := words.New(cfg.Words, observability.GetLogger()).Fetch(cmd.Context())
			if err != nil {
				return err
			}
			gen := query.NewGenerator(pool, seed)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d words\n", gen.Size())
			for i := 0; i < samples; i++ {
				phrase, err := gen.Phrase(cfg.Words.Arity)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, phrase)
			}
			return nil
		},
	}
	wordsCmd.Flags().IntVarP(&samples, "samples", "n", 5, "number of sample queries to print")
	wordsCmd.Flags().Uint64Var(&seed, "seed", 1, "seed for query sampling")
	return wordsCmd
}
