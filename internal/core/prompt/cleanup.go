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

package prompt

import (
	"regexp"
	"strings"
)

// leadIns are the stock openers removed from the start of a reply. They are
// tried in order and at most one is removed.
var leadIns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(Okay|Absolutely|Certainly|Sure|Of course)[,!.\s]+`),
	regexp.MustCompile(`(?i)^(Here['’]s|Here is|Let me|I['’]ll)[,\s]+`),
	regexp.MustCompile(`(?i)^(D['’]accord|Très bien|Bien sûr)[,!.\s]+`),
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// CleanResponse normalises a model reply: it strips one stock lead-in
// phrase, collapses runs of blank lines to a single one and trims the result.
func CleanResponse(text string) string {
	for _, re := range leadIns {
		if loc := re.FindStringIndex(text); loc != nil {
			text = text[loc[1]:]
			break
		}
	}
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
