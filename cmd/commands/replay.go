/*
Copyright 2024 The Tempofuse Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fuseproj/tempofuse/pkg/config"
	"github.com/fuseproj/tempofuse/pkg/shared/logging"
	replaysource "github.com/fuseproj/tempofuse/pkg/sources/replay"
)

func NewReplayCommand() *cobra.Command {
	var (
		settingsPath string
		datasetPath  string
		outputPath   string
	)
	command := &cobra.Command{
		Use:   "replay",
		Short: "Run the fusion pipeline over a recorded dataset and write a results file",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger().Named("replay")
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, logger)

			settings, err := config.Load(settingsPath)
			if err != nil {
				return err
			}
			// Replay runs write a dataset unless the settings say otherwise.
			if outputPath != "" {
				settings.Sink.Type = "dataset"
				settings.Sink.OutputPath = outputPath
			}

			sink, err := buildSink(ctx, settings)
			if err != nil {
				return err
			}
			scheduler, err := buildScheduler(ctx, settings, sink, true)
			if err != nil {
				return err
			}
			if err := scheduler.Start(ctx); err != nil {
				return err
			}

			source, err := replaysource.New(ctx, datasetPath, scheduler, replaysource.WithLogger(logger))
			if err != nil {
				scheduler.Stop()
				return err
			}

			select {
			case <-source.Start():
				// Sequence fully consumed; the source stopped the scheduler.
			case <-ctx.Done():
				logger.Info("Interrupted, stopping replay...")
				scheduler.Stop()
			}
			return sink.Close()
		},
	}
	command.Flags().StringVar(&settingsPath, "settings", "/etc/tempofuse/settings.yaml", "Path to the pipeline settings YAML file")
	command.Flags().StringVar(&datasetPath, "dataset", "", "Path to the recorded JSON dataset to replay")
	command.Flags().StringVar(&outputPath, "output", "", "Path for the results dataset (forces the dataset sink)")
	_ = command.MarkFlagRequired("dataset")
	return command
}
