package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/SpandanM110/Chatroom/internal/client"
	"github.com/SpandanM110/Chatroom/internal/config"
	"github.com/SpandanM110/Chatroom/internal/signaling"
	"github.com/SpandanM110/Chatroom/internal/ui"
	"github.com/spf13/cobra"
)

const statsTimeout = 10 * time.Second

var (
	flagStatsDomain   string
	flagStatsServer   string
	flagStatsInsecure bool
	flagStatsFormat   string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how busy a server is",
	Long: `Fetch a load snapshot from a running server.

Examples:
  chatroom stats
  chatroom stats --domain chat.example.com
  chatroom stats --format markdown`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{
			Domain:    flagStatsDomain,
			ServerURL: flagStatsServer,
			Insecure:  flagStatsInsecure,
		})
		if err != nil {
			return client.NewError("load config", err)
		}

		stats, err := fetchStats(cmd.Context(), cfg.StatsURL())
		if err != nil {
			return err
		}

		switch flagStatsFormat {
		case ui.FormatTable:
			fmt.Println(ui.StatsView(cfg.Domain, stats))
		case "json":
			out, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		default:
			out, err := ui.StatsText(stats, flagStatsFormat)
			if err != nil {
				return err
			}
			fmt.Println(out)
		}
		return nil
	},
}

func fetchStats(ctx context.Context, url string) (signaling.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return signaling.Stats{}, client.NewError("build stats request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return signaling.Stats{}, client.NewError("fetch stats", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return signaling.Stats{}, client.WrapError("fetch stats", client.ErrUnexpectedReply, resp.Status)
	}
	var stats signaling.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return signaling.Stats{}, client.NewError("decode stats", err)
	}
	return stats, nil
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVar(&flagStatsDomain, "domain", "", "Server domain (env DOMAIN)")
	statsCmd.Flags().StringVar(&flagStatsServer, "server", "", "Full WebSocket URL, overrides --domain (env SERVER_URL)")
	statsCmd.Flags().BoolVar(&flagStatsInsecure, "insecure", false, "Use http:// instead of https://")
	statsCmd.Flags().StringVarP(&flagStatsFormat, "format", "f", ui.FormatTable, "Output format: table, plain, markdown, csv or json")
}
