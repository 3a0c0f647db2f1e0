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

package media

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxFilenameBytes keeps names well under the 255 byte limit of common
// filesystems once the store adds its id prefix.
const maxFilenameBytes = 180

var unsafeChars = regexp.MustCompile(`[\\/*?:"<>|\x00-\x1f]`)

// SanitizeFilename turns a video title into a safe single path element:
// reserved characters and whitespace become underscores and path traversal
// is removed. An unusable title yields "video".
func SanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Join(strings.Fields(name), "_")
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "video"
	}
	if len(name) > maxFilenameBytes {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		cut := maxFilenameBytes - len(ext)
		// never split a multibyte rune
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut] + ext
	}
	return name
}
