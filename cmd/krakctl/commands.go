package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/elsanchez/krakguard/pkg/client"
)

type rootOptions struct {
	socketPath string
	jsonOutput bool
}

func (o *rootOptions) client() *client.Client {
	return client.NewClient(o.socketPath)
}

func defaultSocketPath() string {
	if p := os.Getenv("KRAK_SOCKET_PATH"); p != "" {
		return p
	}
	return client.GetDefaultSocketPath()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "krakctl",
		Short:         "Control the krakguard daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.socketPath, "socket", defaultSocketPath(), "daemon socket path (env KRAK_SOCKET_PATH)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print raw JSON")

	root.AddCommand(
		newPingCmd(opts),
		newSaveCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newHistoryCmd(opts),
		newStatsCmd(opts),
		newSweepCmd(opts),
		newUninstallCmd(opts),
		newVersionCmd(),
	)

	return root
}

func newPingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Ping(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okMark()+" krakd is running")
			return nil
		},
	}
}

func newSaveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <json-file>",
		Short: "Save a batch of media through the guard",
		Long: `Save a batch of media through the guard.

The file holds either a JSON array of media or an object {"media": [...]}.
Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			media, err := readMediaFile(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			res, err := opts.client().Save(media)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}

			out := cmd.OutOrStdout()
			for _, m := range res.Media {
				fmt.Fprintf(out, "%s Saved media %d (%s)\n", okMark(), m.ID, m.Name)
			}
			if res.Report == nil {
				fmt.Fprintln(out, mutedStyle.Render("  guard not attached, nothing sent to the optimizer"))
				return nil
			}
			printReport(out, res.Report)
			return nil
		},
	}
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a media item and its krak status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}

			res, err := opts.client().Get(id)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Media %d: %s", res.Media.ID, res.Media.Name)))
			fmt.Fprintf(out, "  Krak status: %s\n", statusStyle(res.KrakStatus).Render(res.KrakStatus))
			keys := make([]string, 0, len(res.Media.Properties))
			for k := range res.Media.Properties {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %-18s %v\n", k+":", res.Media.Properties[k])
			}
			return nil
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently saved media",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			media, err := opts.client().List(limit)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), media)
			}

			out := cmd.OutOrStdout()
			if len(media) == 0 {
				fmt.Fprintln(out, "No media")
				return nil
			}

			t := newTable("ID", "STATUS", "NAME", "FILE")
			for _, m := range media {
				t.Row(strconv.FormatInt(m.ID, 10), m.KrakStatus, truncate(m.Name, 30), m.File)
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of media")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		mediaID int64
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show optimizer calls, for one media or all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := opts.client().History(mediaID, limit)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No history")
				return nil
			}

			t := newTable("WHEN", "MEDIA", "OUTCOME", "API", "APPLIED", "DETAIL")
			for _, e := range entries {
				detail := e.ErrorMessage
				if e.Applied && e.OriginalSize > 0 {
					detail = fmt.Sprintf("%d → %d bytes", e.OriginalSize, e.KrakedSize)
				}
				t.Row(
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					strconv.FormatInt(e.MediaID, 10),
					e.Outcome,
					strconv.Itoa(e.APIStatus),
					strconv.FormatBool(e.Applied),
					detail,
				)
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}

	cmd.Flags().Int64Var(&mediaID, "media", 0, "only calls for this media id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show daemon statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := opts.client().Stats()
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Media"))
			fmt.Fprintf(out, "  Total:      %d\n", stats["media_total"])
			fmt.Fprintf(out, "  Krakable:   %d\n", stats["media_krakable"])
			fmt.Fprintf(out, "  Kraked:     %d\n", stats["media_kraked"])
			fmt.Fprintf(out, "  Ineligible: %d\n", stats["media_ineligible"])
			fmt.Fprintln(out, titleStyle.Render("Optimizer calls"))
			fmt.Fprintf(out, "  Applied:    %d\n", stats["calls_apply"])
			fmt.Fprintf(out, "  Skipped:    %d\n", stats["calls_skip_item"])
			fmt.Fprintf(out, "  Aborted:    %d\n", stats["calls_abort_batch"])
			fmt.Fprintln(out, titleStyle.Render("Guard"))
			fmt.Fprintf(out, "  Attached:   %t\n", stats["guard_attached"] == 1)
			fmt.Fprintf(out, "  Sweeps:     %d\n", stats["sweeps"])
			fmt.Fprintf(out, "  Paused:     %t\n", stats["sweeper_paused"] == 1)
			return nil
		},
	}
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Retry media left unprocessed by an aborted batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().Sweep()
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}

			out := cmd.OutOrStdout()
			switch {
			case res.Ran && res.Report != nil:
				printReport(out, res.Report)
			case !res.PausedUntil.IsZero():
				fmt.Fprintf(out, "%s Sweeper paused until %s\n", warnMark(), res.PausedUntil.Local().Format("15:04:05"))
			default:
				fmt.Fprintln(out, "Nothing to retry")
			}
			return nil
		},
	}
}

func newUninstallCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <package>",
		Short: "Notify the daemon that a package is being removed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detached, err := opts.client().Uninstall(args[0])
			if err != nil {
				return err
			}
			if detached {
				fmt.Fprintf(cmd.OutOrStdout(), "%s Guard detached (%s)\n", okMark(), args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Package %s is not the guard, nothing to do\n", args[0])
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "krakctl v%s\n", version)
		},
	}
}

func printReport(out io.Writer, r *client.Report) {
	fmt.Fprintf(out, "Batch %s: %s\n", r.BatchID, statusStyle(r.State).Render(r.State))
	if r.Disabled {
		fmt.Fprintln(out, "  processing disabled for this batch")
		if r.Fault != "" {
			fmt.Fprintf(out, "  fault: %s\n", r.Fault)
		}
		return
	}
	fmt.Fprintf(out, "  Calls: %d  Applied: %d  Skipped: %d\n", r.Calls, r.Applied, r.Skipped)
	if r.AbortStatus != 0 {
		fmt.Fprintf(out, "  %s Aborted by API status %d, remaining media will be retried later\n", failMark(), r.AbortStatus)
	}
	for _, it := range r.Items {
		if !it.Processed {
			if it.Due && r.State == "aborted" {
				fmt.Fprintf(out, "  %s media %d: pending\n", warnMark(), it.MediaID)
			}
			continue
		}
		mark := okMark()
		if !it.Applied {
			mark = failMark()
		}
		line := fmt.Sprintf("  %s media %d: %s", mark, it.MediaID, it.Outcome)
		if it.Error != "" {
			line += " (" + it.Error + ")"
		}
		fmt.Fprintln(out, line)
	}
}

// readMediaFile acepta un array de media o {"media": [...]}
func readMediaFile(stdin io.Reader, path string) ([]client.Media, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var media []client.Media
	if data[0] == '[' {
		err = dec.Decode(&media)
	} else {
		var wrapped struct {
			Media []client.Media `json:"media"`
		}
		err = dec.Decode(&wrapped)
		media = wrapped.Media
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(media) == 0 {
		return nil, fmt.Errorf("%s contains no media", path)
	}
	return media, nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
