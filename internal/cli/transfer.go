package cli

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/joshfom/tauri-drive/internal/events"
	"github.com/joshfom/tauri-drive/internal/types"
)

func newConnectCommand() *cobra.Command {
	var (
		accountID string
		accessKey string
		secretKey string
		endpoint  string
		save      bool
	)

	cmd := &cobra.Command{
		Use:   "connect <bucket>",
		Short: "Connect to a bucket and verify credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint == "" {
				endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
			}
			creds := types.Credentials{
				AccountID:       accountID,
				AccessKeyID:     accessKey,
				SecretAccessKey: secretKey,
				Endpoint:        endpoint,
			}
			msg, err := app.Connect(cmd.Context(), creds, args[0], save)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account-id", "", "R2 account id")
	cmd.Flags().StringVar(&accessKey, "access-key-id", "", "access key id")
	cmd.Flags().StringVar(&secretKey, "secret-access-key", "", "secret access key")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "endpoint URL (derived from account id when empty)")
	cmd.Flags().BoolVar(&save, "save", true, "persist credentials for later sessions")
	cmd.MarkFlagRequired("account-id")
	cmd.MarkFlagRequired("access-key-id")
	cmd.MarkFlagRequired("secret-access-key")

	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List remote objects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := connectForTransfer(cmd.Context()); err != nil {
				return err
			}
			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			objects, err := app.ListObjects(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			for _, obj := range objects {
				fmt.Printf("%12d  %s  %s\n", obj.Size, obj.LastModified.Format("2006-01-02 15:04"), obj.Key)
			}
			return nil
		},
	}
}

func newUploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <local-path> <remote-key>",
		Short: "Upload a file, resumable with progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := connectForTransfer(cmd.Context()); err != nil {
				return err
			}

			done := renderUploadProgress()
			uploadID, err := app.UploadFileWithProgress(cmd.Context(), args[0], args[1])
			done()
			if err != nil {
				return err
			}
			fmt.Printf("Upload complete: %s\n", uploadID)
			return nil
		},
	}
}

func newDownloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "download <remote-key> <local-path>",
		Short: "Download a file with progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := connectForTransfer(cmd.Context()); err != nil {
				return err
			}

			done := renderDownloadProgress()
			_, err := app.DownloadFileWithProgress(cmd.Context(), args[0], args[1])
			done()
			if err != nil {
				return err
			}
			fmt.Println("Download complete")
			return nil
		},
	}
}

// renderUploadProgress subscribes to the upload-progress channel and drives a
// progress bar until the returned stop function is called.
func renderUploadProgress() func() {
	ch := app.Bus().Subscribe(events.ChannelUploadProgress)
	stopped := make(chan struct{})

	go func() {
		var bar *progressbar.ProgressBar
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				progress, ok := event.Payload.(types.UploadProgress)
				if !ok {
					continue
				}
				if bar == nil && progress.TotalSize > 0 {
					bar = progressbar.NewOptions64(progress.TotalSize,
						progressbar.OptionSetDescription(progress.FileName),
						progressbar.OptionSetWriter(os.Stderr),
						progressbar.OptionShowBytes(true),
						progressbar.OptionThrottle(0),
					)
				}
				if bar != nil {
					bar.Set64(progress.UploadedSize)
				}
			case <-stopped:
				return
			}
		}
	}()

	return func() {
		close(stopped)
		app.Bus().Unsubscribe(events.ChannelUploadProgress, ch)
		fmt.Fprintln(os.Stderr)
	}
}

func renderDownloadProgress() func() {
	ch := app.Bus().Subscribe(events.ChannelDownloadProgress)
	stopped := make(chan struct{})

	go func() {
		var bar *progressbar.ProgressBar
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				progress, ok := event.Payload.(types.DownloadProgress)
				if !ok {
					continue
				}
				if bar == nil && progress.TotalSize > 0 {
					bar = progressbar.NewOptions64(progress.TotalSize,
						progressbar.OptionSetDescription(progress.FileName),
						progressbar.OptionSetWriter(os.Stderr),
						progressbar.OptionShowBytes(true),
						progressbar.OptionThrottle(0),
					)
				}
				if bar != nil {
					bar.Set64(progress.DownloadedSize)
				}
			case <-stopped:
				return
			}
		}
	}()

	return func() {
		close(stopped)
		app.Bus().Unsubscribe(events.ChannelDownloadProgress, ch)
		fmt.Fprintln(os.Stderr)
	}
}

func newUploadsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uploads",
		Short: "List active uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			uploads, err := app.GetActiveUploads(cmd.Context())
			if err != nil {
				return err
			}
			if len(uploads) == 0 {
				fmt.Println("No active uploads")
				return nil
			}
			for _, u := range uploads {
				fmt.Printf("%s  %-10s %6.1f%%  %s\n", u.ID, u.Status, u.Progress, u.FileName)
			}
			return nil
		},
	}
}

func newPauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <upload-id>",
		Short: "Pause an active upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.PauseUpload(cmd.Context(), args[0])
		},
	}
}

func newResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <upload-id>",
		Short: "Resume a paused upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.ResumeUpload(cmd.Context(), args[0])
		},
	}
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <upload-id>",
		Short: "Cancel an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.CancelUpload(cmd.Context(), args[0])
		},
	}
}

func newRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <upload-id>",
		Short: "Retry an upload under a fresh id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := connectForTransfer(cmd.Context()); err != nil {
				return err
			}
			newID, err := app.RetryUpload(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Retried as %s\n", newID)
			return nil
		},
	}
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <remote-key>",
		Short: "Delete a remote object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := connectForTransfer(cmd.Context()); err != nil {
				return err
			}
			return app.DeleteFile(cmd.Context(), args[0])
		},
	}
}

func newCopyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <source-key> <dest-key>",
		Short: "Copy a remote object within the bucket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := connectForTransfer(cmd.Context()); err != nil {
				return err
			}
			return app.CopyFile(cmd.Context(), args[0], args[1])
		},
	}
}

func newMkdirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <folder-path>",
		Short: "Create a remote folder marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := connectForTransfer(cmd.Context()); err != nil {
				return err
			}
			msg, err := app.CreateFolder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
}
