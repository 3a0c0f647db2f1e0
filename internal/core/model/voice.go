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

package model

import (
	"fmt"
	"strings"
)

// Voice names a synthesis voice. The set is closed: only the profiles listed
// in Voices are accepted anywhere in the pipeline.
type Voice string

const (
	VoiceGiaHuy  Voice = "giahuy"
	VoiceNgocLam Voice = "ngoclam"

	DefaultVoice = VoiceGiaHuy
)

// VoiceProfile describes a voice for callers that list or display voices.
type VoiceProfile struct {
	ID     Voice  `json:"id"`
	Label  string `json:"label"`
	Gender string `json:"gender"`
}

var voiceProfiles = []VoiceProfile{
	{ID: VoiceGiaHuy, Label: "Gia Huy", Gender: "male"},
	{ID: VoiceNgocLam, Label: "Ngọc Lâm", Gender: "female"},
}

// Voices returns the enumerated voice profiles in display order.
func Voices() []VoiceProfile {
	out := make([]VoiceProfile, len(voiceProfiles))
	copy(out, voiceProfiles)
	return out
}

// ParseVoice validates a user supplied voice name. An empty name selects the
// default voice; anything outside the enumeration is a configuration error.
func ParseVoice(in string) (Voice, error) {
	name := strings.ToLower(strings.TrimSpace(in))
	if name == "" {
		return DefaultVoice, nil
	}
	for _, p := range voiceProfiles {
		if string(p.ID) == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("%w: unknown voice profile %q", ErrConfiguration, in)
}

// Label returns the display label of the voice.
func (v Voice) Label() string {
	for _, p := range voiceProfiles {
		if p.ID == v {
			return p.Label
		}
	}
	return "Unknown"
}

func (v Voice) String() string { return string(v) }
