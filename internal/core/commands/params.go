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

package commands

// Context keys shared by the narration commands. Each command reads and
// writes named parameters instead of relying on the CtxIn/CtxOut flip-flop,
// since later stages need outputs of several earlier ones.
const (
	ParamRequest    = "narration.request"    // *model.NarrationRequest
	ParamVoice      = "narration.voice"      // model.Voice
	ParamRunID      = "narration.run_id"     // string
	ParamWorkspace  = "narration.workspace"  // string, per-run working directory
	ParamSourcePath = "narration.source"     // string, downloaded or local source video
	ParamTitle      = "narration.title"      // string
	ParamVideoID    = "narration.video_id"   // string, artifact store id
	ParamVideoPath  = "narration.video"      // string, stored original
	ParamAudioPath  = "narration.audio"      // string, 16 kHz mono WAV
	ParamTranscript = "narration.transcript" // []model.TranscriptSegment
	ParamSegments   = "narration.segments"   // []model.NarrationSegment
	ParamOutcome    = "narration.outcome"    // *NarrationOutcome
	ParamTrackPath  = "narration.track"      // string, composed narration WAV
	ParamOutputPath = "narration.output"     // string, remuxed video in the workspace
	ParamRecord     = "narration.record"     // *model.VideoRecord after registering
	ParamMirrorURI  = "narration.mirror_uri" // string
)

// Command names. The workflow maps them onto pipeline stages.
const (
	FetchSourceName        = "fetch-source"
	RegisterOriginalName   = "register-original"
	ExtractAudioName       = "extract-audio"
	TranscribeName         = "transcribe-audio"
	NarrateName            = "narrate-segments"
	ComposeName            = "compose-track"
	RemuxName              = "remux-video"
	RegisterNarratedName   = "register-narrated"
	MirrorArtifactName     = "mirror-artifact"
	SegmentsToBigQueryName = "segments-to-bigquery"
	CleanupWorkspaceName   = "cleanup-workspace"
	TriggerReaderName      = "narration-trigger-reader"
)
