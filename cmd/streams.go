package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/config"
)

var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "Inspect configured discovery streams",
}

var streamsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List streams found in the streams directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		keys, err := config.ListStreams(cfg.Research.StreamsDir)
		if err != nil {
			return eris.Wrap(err, "streams list")
		}
		if len(keys) == 0 {
			fmt.Fprintln(os.Stderr, "No streams found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "KEY\tLABEL\tSOURCES\tCITIES\tMAX_NEW")
		for _, key := range keys {
			stream, err := config.LoadStream(cfg.Research.StreamsDir, key)
			if err != nil {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t\t\n", key, config.StreamLabel(key), "invalid: "+err.Error())
				continue
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
				key,
				config.StreamLabel(key),
				enabledSources(stream),
				len(stream.TargetProfile.Geography.Cities),
				stream.Research.MaxNew,
			)
		}
		_ = w.Flush()
		return nil
	},
}

func enabledSources(stream *config.StreamConfig) string {
	out := ""
	if stream.DataSources.GoogleMaps.Enabled {
		out = "google_maps"
	}
	if stream.DataSources.TradeData.Enabled {
		if out != "" {
			out += ","
		}
		out += "trade_data"
	}
	if out == "" {
		out = "none"
	}
	return out
}

// loadStream reads a stream profile, applying the app-level default
// creation cap when the stream does not set one.
func loadStream(key string) (*config.StreamConfig, error) {
	stream, err := config.LoadStream(cfg.Research.StreamsDir, key)
	if err != nil {
		return nil, err
	}
	if stream.Research.MaxNew == 0 {
		stream.Research.MaxNew = cfg.Research.MaxNew
	}
	return stream, nil
}

func init() {
	streamsCmd.AddCommand(streamsListCmd)
	rootCmd.AddCommand(streamsCmd)
}
