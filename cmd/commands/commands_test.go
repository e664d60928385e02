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
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fuseproj/tempofuse/pkg/config"
	"github.com/fuseproj/tempofuse/pkg/sinks/dataset"
	"github.com/fuseproj/tempofuse/pkg/sinks/logger"
)

func Test_Commands(t *testing.T) {

	t.Run("root execute", func(t *testing.T) {
		assert.NotPanics(t, Execute, "help")
	})

	t.Run("test root", func(t *testing.T) {
		b := bytes.NewBufferString("")
		rootCmd.SetOut(b)
		rootCmd.SetArgs([]string{"help"})
		Execute()
		output, _ := io.ReadAll(b)
		assert.Contains(t, string(output), "Available Commands")
	})

	t.Run("Fuse", func(t *testing.T) {
		cmd := NewFuseCommand()
		assert.True(t, cmd.HasLocalFlags())
		assert.Equal(t, "fuse", cmd.Use)
		assert.Equal(t, "string", cmd.Flag("settings").Value.Type())
		assert.Equal(t, "string", cmd.Flag("nats-url").Value.Type())
		cmd.SetArgs([]string{"--settings=/no/such/settings.yaml"})
		err := cmd.Execute()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load configuration file")
	})

	t.Run("Replay", func(t *testing.T) {
		cmd := NewReplayCommand()
		assert.True(t, cmd.HasLocalFlags())
		assert.Equal(t, "replay", cmd.Use)
		assert.Equal(t, "string", cmd.Flag("dataset").Value.Type())
		assert.Equal(t, "string", cmd.Flag("output").Value.Type())
		err := cmd.Execute()
		assert.Error(t, err, "dataset flag is required")
	})
}

func Test_BuildSink(t *testing.T) {
	ctx := context.Background()

	s := config.DefaultSettings()
	sink, err := buildSink(ctx, s)
	assert.NoError(t, err)
	assert.IsType(t, &logger.ToLog{}, sink)

	s.Sink.Type = "dataset"
	s.Sink.OutputPath = t.TempDir() + "/results.json"
	sink, err = buildSink(ctx, s)
	assert.NoError(t, err)
	assert.IsType(t, &dataset.Collector{}, sink)

	s.Sink.Type = "redis"
	s.Sink.RedisURL = "not a url"
	_, err = buildSink(ctx, s)
	assert.Error(t, err)

	s.Sink.Type = "carrier-pigeon"
	_, err = buildSink(ctx, s)
	assert.Error(t, err)
}

func Test_BuildScheduler(t *testing.T) {
	ctx := context.Background()
	s := config.DefaultSettings()

	sched, err := buildScheduler(ctx, s, nil, false)
	assert.NoError(t, err)
	assert.Nil(t, sched.Sync())

	sched, err = buildScheduler(ctx, s, nil, true)
	assert.NoError(t, err)
	assert.NotNil(t, sched.Sync())

	s.Anchor = "sideways"
	_, err = buildScheduler(ctx, s, nil, false)
	assert.Error(t, err)
}
