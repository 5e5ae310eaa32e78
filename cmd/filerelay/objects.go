package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goliatone/go-filerelay"
	"github.com/spf13/cobra"
)

var (
	fetchOut     string
	linkExpires  time.Duration
	linkStream   bool
	linkNoStream bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <key>",
	Short: "Download a stored object",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		key := args[0]

		dst := fetchOut
		if dst == "" {
			dst = filepath.Base(key)
		}

		out := cmd.OutOrStdout()
		info, err := app.relay.Fetch(cmd.Context(), key, dst, func(ev filerelay.ProgressEvent) {
			fmt.Fprintf(out, "%s %.1f%% %s\n", filerelay.ProgressBar(ev.Percent()), ev.Percent(), filerelay.FormatSpeed(ev.Speed()))
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "saved %s (%s)\n", dst, humanize.IBytes(uint64(info.Size)))
		return nil
	}),
}

var linkCmd = &cobra.Command{
	Use:   "link <key>",
	Short: "Generate a new access link for a stored object",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		key := args[0]

		stream := filerelay.Classify(key).Streamable
		if cmd.Flags().Changed("stream") {
			stream = linkStream
		}
		if linkNoStream {
			stream = false
		}

		link, err := app.relay.Link(cmd.Context(), key, linkExpires, stream)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, link.URL)
		fmt.Fprintf(out, "expires %s\n", humanize.Time(link.ExpiresAt))
		if link.Streamable {
			cls := filerelay.Classify(key)
			fmt.Fprintln(out, filerelay.PlayerURL(app.cfg.Server.PublicURL, link.URL, filepath.Base(key), cls.MediaKind))
		}
		return nil
	}),
}

var infoCmd = &cobra.Command{
	Use:   "info <key>",
	Short: "Show object metadata",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		info, ok := app.relay.HeadInfo(cmd.Context(), args[0])
		if !ok {
			return fmt.Errorf("%w: %s", filerelay.ErrObjectNotFound, args[0])
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}),
}

var rmCmd = &cobra.Command{
	Use:   "rm <key>...",
	Short: "Delete stored objects",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		for _, key := range args {
			if err := app.relay.Delete(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", key)
		}
		return nil
	}),
}

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List stored objects",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fsys, err := bucketFS(cmd, cfg.Storage)
		if err != nil {
			return err
		}

		root := "."
		if len(args) > 0 {
			root = args[0]
		}

		out := cmd.OutOrStdout()
		return fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%10s  %s  %s\n", humanize.IBytes(uint64(info.Size())), info.ModTime().Format(time.RFC3339), path)
			return nil
		})
	},
}

func bucketFS(cmd *cobra.Command, cfg filerelay.StorageConfig) (fs.FS, error) {
	switch cfg.Backend {
	case filerelay.BackendFS:
		return filerelay.NewFSStore(cfg.LocalRoot), nil
	default:
		client, err := filerelay.NewS3Client(cmd.Context(), cfg)
		if err != nil {
			return nil, err
		}
		return filerelay.NewBucketFS(client, cfg.Bucket), nil
	}
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOut, "output", "o", "", "destination path (defaults to the key base name)")
	linkCmd.Flags().DurationVar(&linkExpires, "expires", 0, "link lifetime (defaults to LINK_EXPIRATION)")
	linkCmd.Flags().BoolVar(&linkStream, "stream", false, "serve the object inline")
	linkCmd.Flags().BoolVar(&linkNoStream, "download", false, "force an attachment download link")

	rootCmd.AddCommand(fetchCmd, linkCmd, infoCmd, rmCmd, lsCmd)
}
