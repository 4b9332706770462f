package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kmoussa/spacegrab/pkg/contract"
	"github.com/kmoussa/spacegrab/pkg/download"
	"github.com/kmoussa/spacegrab/pkg/storage"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	var (
		dest            string
		workers         int
		credentialsFile string
	)

	cmd := &cobra.Command{
		Use:   "fetch [KEY...]",
		Short: "Download objects from the configured bucket",
		Long: `Download one or more objects from the configured Spaces bucket.
Each key is fetched into the destination directory under its base name.
Transfers run concurrently up to the configured number of workers.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args, dest, workers, credentialsFile)
		},
	}

	cmd.Flags().StringVar(&dest, "dest", ".", "Destination directory for downloaded files")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of parallel transfers (0=from config)")
	cmd.Flags().StringVar(&credentialsFile, "credentials", "", "Credentials file path (defaults to config)")

	return cmd
}

func runFetch(cmd *cobra.Command, keys []string, dest string, workers int, credentialsFile string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Workers = workers
	}

	creds, err := loadCredentials(cfg, credentialsFile)
	if err != nil {
		return err
	}

	dialer := storage.NewDialer(storage.Options{
		Bucket:    creds.Bucket,
		AccessKey: creds.AccessKey,
		SecretKey: creds.SecretKey,
		Region:    creds.Region,
		Endpoint:  creds.Endpoint,
	})

	ctx := cmd.Context()

	manager, err := download.NewManager(ctx, dialer, download.Options{
		Workers:         cfg.Workers,
		PopWait:         cfg.PopWait,
		JoinTimeout:     cfg.JoinTimeout,
		TrackerInterval: cfg.TrackerInterval,
		RetryAttempts:   cfg.Retry.Attempts,
		Logger:          GetLogger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create download manager: %w", err)
	}

	factory := contract.NewFactory(creds.Bucket)
	for _, key := range keys {
		c := factory.New(key, filepath.Join(dest, filepath.Base(key)), nil)
		task := manager.Submit(c)
		Debug("queued download", "task", task.ID, "key", key)
	}

	manager.Start(ctx)
	waitErr := manager.Wait(ctx)
	manager.Stop()
	if waitErr != nil {
		return fmt.Errorf("downloads interrupted: %w", waitErr)
	}

	completed := manager.Complete().Len()
	failed := manager.Failed().Len()
	Info("downloads finished", "completed", completed, "failed", failed)

	if failed > 0 {
		for {
			task, ok := manager.Failed().TryPop()
			if !ok {
				break
			}
			Error("download failed", "task", task.ID, "key", task.Key, "error", task.Err())
		}
		return fmt.Errorf("%d of %d downloads failed", failed, len(keys))
	}

	return nil
}
