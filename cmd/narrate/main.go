// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command narrate runs one narration from the command line:
//
//	narrate -url https://youtu.be/... [-voice giahuy] [-title t] [-reset]
//	narrate -file ./talk.mp4
//	narrate doctor
//
// The run report is printed as JSON. The exit status is 1 when the run
// failed and 2 on usage or setup errors.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaycherian/go-media-narrator/internal/app"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/telemetry"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "doctor" {
		os.Exit(doctor())
	}

	var req model.NarrationRequest
	var reset bool
	flag.StringVar(&req.SourceURL, "url", "", "video URL to download")
	flag.StringVar(&req.LocalPath, "file", "", "local video file")
	flag.StringVar(&req.Voice, "voice", "", "narration voice (defaults to pipeline.default_voice)")
	flag.StringVar(&req.Title, "title", "", "title of the video")
	flag.StringVar(&req.ModelSize, "model", "", "transcription model size")
	flag.BoolVar(&reset, "reset", false, "wipe the artifact store and working directories first")
	flag.Parse()

	if _, err := req.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	config, err := app.GetConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	closer, err := telemetry.SetupLogging(config.Logging)
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, config, reset)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(2)
	}
	defer a.Close()

	report, err := a.Workflow.Run(ctx, &req)
	printReport(report)
	if err != nil {
		slog.Error("narration failed", "error", err)
		stop()
		a.Close()
		os.Exit(1)
	}
}

func printReport(report *model.RunReport) {
	if report == nil {
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Warn("failed to print report", "error", err)
	}
	fmt.Fprintln(os.Stderr, report.String())
}

func doctor() int {
	config, err := app.GetConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	code := 0
	for _, status := range app.Doctor(context.Background(), config) {
		if status.OK() {
			fmt.Printf("ok       %-8s %s\n", status.Name, status.Version)
			continue
		}
		fmt.Printf("missing  %-8s %s: %s\n", status.Name, status.Path, status.Error)
		code = 1
	}
	return code
}
