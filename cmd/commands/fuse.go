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
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fuseproj/tempofuse/pkg/config"
	"github.com/fuseproj/tempofuse/pkg/metrics"
	"github.com/fuseproj/tempofuse/pkg/shared/logging"
	natssource "github.com/fuseproj/tempofuse/pkg/sources/nats"
)

func NewFuseCommand() *cobra.Command {
	var (
		settingsPath string
		natsURL      string
	)
	command := &cobra.Command{
		Use:   "fuse",
		Short: "Start the live fusion pipeline consuming the nats stream subjects",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger().Named("fuse")
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, logger)

			settings, err := config.Load(settingsPath)
			if err != nil {
				return err
			}
			if natsURL != "" {
				settings.Nats.URL = natsURL
			}

			sink, err := buildSink(ctx, settings)
			if err != nil {
				return err
			}
			scheduler, err := buildScheduler(ctx, settings, sink, false)
			if err != nil {
				return err
			}
			if err := scheduler.Start(ctx); err != nil {
				return err
			}

			sourceOpts := []natssource.Option{natssource.WithLogger(logger)}
			if settings.Nats.FrameSubject != "" {
				sourceOpts = append(sourceOpts, natssource.WithSubjects(
					settings.Nats.FrameSubject, settings.Nats.DetectionSubject, settings.Nats.PoseSubject))
			}
			if settings.Nats.Queue != "" {
				sourceOpts = append(sourceOpts, natssource.WithQueue(settings.Nats.Queue))
			}
			source, err := natssource.New(ctx, settings.Nats.URL, settings.PipelineName, scheduler, sourceOpts...)
			if err != nil {
				scheduler.Stop()
				return err
			}

			var metricsShutdown func(context.Context) error
			if settings.Metrics.Addr != "" {
				ms := metrics.NewMetricsServer(settings.Metrics.Addr,
					metrics.WithHealthCheckExecutor(func() error { return healthCheck(scheduler) }))
				metricsShutdown, err = ms.Start(ctx)
				if err != nil {
					return err
				}
			}

			logger.Infow("Fusion pipeline running", "pipeline", settings.PipelineName)
			<-ctx.Done()
			logger.Info("Shutting down...")

			g := new(errgroup.Group)
			g.Go(source.Close)
			if metricsShutdown != nil {
				g.Go(func() error {
					cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return metricsShutdown(cctx)
				})
			}
			if err := g.Wait(); err != nil {
				logger.Warnw("Shutdown error", "err", err)
			}
			scheduler.Stop()
			return sink.Close()
		},
	}
	command.Flags().StringVar(&settingsPath, "settings", "/etc/tempofuse/settings.yaml", "Path to the pipeline settings YAML file")
	command.Flags().StringVar(&natsURL, "nats-url", "", "Override the nats server URL from the settings file")
	return command
}
