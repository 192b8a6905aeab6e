package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type extractOptions struct {
	check []string
}

// newExtractCmd creates the 'extract' subcommand.
func newExtractCmd() *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract <url> [file|-]",
		Short: "Extracts one article and prints the result as JSON",
		Long: `Runs the detail configs matching url against the page in file, or
against standard input when file is "-". Without a file the page is
downloaded.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a App) error {
			var document string
			if len(args) == 2 {
				b, err := readDocument(cmd.InOrStdin(), args[1])
				if err != nil {
					return err
				}
				document = string(b)
			}
			result, err := a.Details().Parse(cmd.Context(), args[0], document, opts.check...)
			if err != nil {
				return fmt.Errorf("extract %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(result)
		}),
	}
	cmd.Flags().StringSliceVar(&opts.check, "check", nil, "fields that must be non-empty (default content)")
	return cmd
}

func readDocument(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return b, nil
}
