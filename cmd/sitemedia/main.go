// sitemedia is the operator CLI: it can enqueue a transcode for an
// existing storage object or run the whole pipeline inline, bypassing
// the queue, which is handy when reprocessing a single video.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lumenweb/sitemedia/internal/config"
	"github.com/lumenweb/sitemedia/internal/database"
	"github.com/lumenweb/sitemedia/internal/encoder"
	"github.com/lumenweb/sitemedia/internal/model"
	"github.com/lumenweb/sitemedia/internal/publish"
	"github.com/lumenweb/sitemedia/internal/queue"
	"github.com/lumenweb/sitemedia/internal/repository"
	"github.com/lumenweb/sitemedia/internal/s3storage"
	"github.com/lumenweb/sitemedia/internal/worker"
)

func main() {
	root := &cobra.Command{
		Use:           "sitemedia",
		Short:         "Operator tooling for the site media transcode pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newEnqueueCmd(), newRunCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type eventFlags struct {
	path        string
	contentType string
	metadata    []string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "path", "", "Object path in the content bucket")
	cmd.Flags().StringVar(&f.contentType, "content-type", "video/mp4", "Object content type")
	cmd.Flags().StringArrayVar(&f.metadata, "meta", nil, "Custom metadata as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("path")
}

func (f *eventFlags) event() (model.StorageFinalizeEvent, error) {
	evt := model.StorageFinalizeEvent{
		ObjectPath:  f.path,
		ContentType: f.contentType,
	}
	for _, pair := range f.metadata {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return evt, fmt.Errorf("invalid --meta %q, expected key=value", pair)
		}
		if evt.Metadata == nil {
			evt.Metadata = map[string]string{}
		}
		evt.Metadata[key] = value
	}
	return evt, nil
}

func newEnqueueCmd() *cobra.Command {
	var flags eventFlags
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a transcode job for an object already in storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			evt, err := flags.event()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := asynq.NewClient(asynq.RedisClientOpt{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			defer client.Close()
			if err := queue.EnqueueTranscode(cmd.Context(), client, evt); err != nil {
				return err
			}
			fmt.Printf("queued transcode for %s\n", evt.ObjectPath)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newRunCmd() *cobra.Command {
	var flags eventFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline inline against a storage object (bypasses the queue)",
		RunE: func(cmd *cobra.Command, args []string) error {
			evt, err := flags.event()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			pool, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()
			if err := database.EnsureSchema(ctx, pool); err != nil {
				return err
			}
			store, err := s3storage.New(cfg)
			if err != nil {
				return err
			}
			processor := worker.NewProcessor(
				encoder.New(encoder.Config{FFmpegBin: cfg.FFmpegBin}),
				store,
				publish.NewPublisher(store),
				repository.NewMediaReconciler(pool),
				cfg.DownloadHost,
				cfg.MediaBucket,
			)
			return processor.Process(ctx, evt)
		},
	}
	flags.register(cmd)
	return cmd
}

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	return config.Load()
}
