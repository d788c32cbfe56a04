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

// Package commands contains the individual steps of a chat turn. Each
// command reads its inputs from, and writes its outputs to, named keys of the
// shared cor.Context so that the workflows can arrange them per mode.
package commands

// Context keys shared by the turn commands.
const (
	ParamRequest           = "__REQUEST__"            // *model.ChatRequest
	ParamMode              = "__MODE__"               // model.Mode
	ParamMessage           = "__MESSAGE__"            // string, the user text after defaults
	ParamHistory           = "__HISTORY__"            // string, the memory digest
	ParamVideoPaths        = "__VIDEO_PATHS__"        // []string, local copies of the videos
	ParamSampledVideo      = "__SAMPLED_VIDEO__"      // *model.SampledVideo
	ParamVideoDigests      = "__VIDEO_DIGESTS__"      // []*model.VideoDigest
	ParamImageDescriptions = "__IMAGE_DESCRIPTIONS__" // []string, one per image
	ParamPrompt            = "__PROMPT__"             // string
	ParamRawResponse       = "__RAW_RESPONSE__"       // string, as returned by the model
	ParamResponse          = "__RESPONSE__"           // string, after cleanup
)
