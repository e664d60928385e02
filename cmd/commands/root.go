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
	"github.com/spf13/cobra"

	"github.com/fuseproj/tempofuse/pkg/shared/logging"
)

var rootCmd = &cobra.Command{
	Use:   "tempofuse",
	Short: "tempofuse fuses timestamped sensor streams into activity classifications",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.HelpFunc()(cmd, args)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.NewLogger().Fatalw("Command failed", "err", err)
	}
}

func init() {
	rootCmd.AddCommand(NewFuseCommand())
	rootCmd.AddCommand(NewReplayCommand())
}
