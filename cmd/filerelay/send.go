package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-filerelay"
	"github.com/spf13/cobra"
)

var (
	sendKind string
	sendName string
	sendMime string
)

var sendCmd = &cobra.Command{
	Use:   "send <file>",
	Short: "Relay a local file and print its access link",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		path := args[0]

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		name := sendName
		if name == "" {
			name = info.Name()
		}

		kind := filerelay.FileKind(sendKind)
		if kind == "" {
			kind = filerelay.KindFor(name)
		}

		req := filerelay.TransferRequest{
			Name:     name,
			Size:     info.Size(),
			Kind:     kind,
			MimeType: sendMime,
			Source:   filerelay.NewFileSource(path),
		}

		out := cmd.OutOrStdout()
		res, err := app.relay.Transfer(cmd.Context(), req, func(ev filerelay.ProgressEvent) {
			fmt.Fprintln(out, strings.ReplaceAll(filerelay.ProgressText(ev), "\n\n", "\n"))
		})
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), filerelay.FailureText(err))
			return err
		}

		fmt.Fprintln(out, filerelay.SuccessText(res))
		for _, action := range filerelay.Actions(res, app.cfg.Server.PublicURL) {
			fmt.Fprintf(out, "%s: %s\n", action.Label, action.URL)
		}

		return nil
	}),
}

func init() {
	sendCmd.Flags().StringVar(&sendKind, "kind", "", "attachment kind: document, video, audio or photo (guessed from the name by default)")
	sendCmd.Flags().StringVar(&sendName, "name", "", "name to store the file under")
	sendCmd.Flags().StringVar(&sendMime, "mime", "", "MIME type, used to add an extension to names without one")
	rootCmd.AddCommand(sendCmd)
}
