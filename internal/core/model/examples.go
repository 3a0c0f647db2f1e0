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

// Package model defines the data structures for the narration pipeline. This
// file, `examples.go`, provides hardcoded examples that are embedded into the
// generative AI prompts as few-shot guidance. Showing the model one concrete
// source/target pair keeps its replies to the bare translation, without quotes,
// notes or alternative renderings, which the narrate stage can speak as-is.
package model

// TranslationExample is a single few-shot pair for the translation prompt.
type TranslationExample struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// GetExampleTranslation returns the English to Vietnamese example used by the
// default translation prompt.
func GetExampleTranslation() *TranslationExample {
	return &TranslationExample{
		Source: "Today we are going to build a small robot that can follow a line on the floor.",
		Target: "Hôm nay chúng ta sẽ chế tạo một con robot nhỏ có thể đi theo một đường kẻ trên sàn nhà.",
	}
}

// GetExampleSegments returns a short narrated transcript used by the summary
// prompt to show the expected input layout.
func GetExampleSegments() []SegmentExport {
	return []SegmentExport{
		{Start: 0, End: 4.2, Text: "Xin chào mọi người, chào mừng quay trở lại kênh.", Voice: string(VoiceGiaHuy)},
		{Start: 4.2, End: 9.8, Text: "Hôm nay chúng ta sẽ tìm hiểu cách pha cà phê phin.", Voice: string(VoiceGiaHuy)},
	}
}

// VideoSummary is the structured summary generated from a narrated transcript.
type VideoSummary struct {
	VideoID  string   `json:"video_id,omitempty"`
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
	Language string   `json:"language"`
}

// GetExampleSummary returns the summary matching GetExampleSegments, used as
// the expected output shape in the summary prompt.
func GetExampleSummary() *VideoSummary {
	return &VideoSummary{
		Title:    "Cách pha cà phê phin",
		Summary:  "Người dẫn chào khán giả và giới thiệu cách pha cà phê phin truyền thống.",
		Keywords: []string{"cà phê", "phin", "hướng dẫn"},
		Language: "vi",
	}
}
