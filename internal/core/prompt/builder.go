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

// Package prompt assembles the prompts sent to the language model. There is
// one template per conversation mode; the structured context each one embeds
// (image description, video timeline, mixed media digest) is computed here so
// templates only arrange it.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
)

const DefaultLanguage = "English"

// Input is the union of everything a mode template can use.
type Input struct {
	Message      string               // The raw user message.
	ImageContent string               // Image mode: the description of the image.
	Images       []string             // Mixed modes: one description per image.
	Videos       []*model.VideoDigest // Video and mixed modes.
}

// templateData is the value the templates are executed with.
type templateData struct {
	Language     string
	Message      string
	ImageContent string
	Minutes      int
	Seconds      int
	Timeline     string
	MediaContext string
}

// Builder renders the prompt of each mode.
type Builder struct {
	language   string
	extraction string
	templates  map[model.MessageKind]*template.Template
}

// NewBuilder compiles the default templates, replacing each one that config
// overrides. An override that does not parse is an error.
func NewBuilder(config cloud.PromptTemplates) (*Builder, error) {
	b := &Builder{
		language:   config.Language,
		extraction: config.Extraction,
		templates:  make(map[model.MessageKind]*template.Template),
	}
	if b.language == "" {
		b.language = DefaultLanguage
	}
	if b.extraction == "" {
		b.extraction = DefaultExtractionPrompt
	}

	style, err := template.New("style").Parse(StyleTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse style template: %w", err)
	}

	for kind, text := range map[model.MessageKind]string{
		model.KindText:  pick(config.Text, DefaultTextTemplate),
		model.KindImage: pick(config.Image, DefaultImageTemplate),
		model.KindVideo: pick(config.Video, DefaultVideoTemplate),
		model.KindMixed: pick(config.Mixed, DefaultMixedTemplate),
	} {
		t, err := style.Clone()
		if err != nil {
			return nil, err
		}
		if t, err = t.New(string(kind)).Parse(text); err != nil {
			return nil, fmt.Errorf("failed to parse %s prompt template: %w", kind, err)
		}
		b.templates[kind] = t
	}
	return b, nil
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// ExtractionPrompt returns the instruction sent to the vision model.
func (b *Builder) ExtractionPrompt() string {
	return b.extraction
}

// Language returns the language replies are requested in.
func (b *Builder) Language() string {
	return b.language
}

func (b *Builder) render(kind model.MessageKind, data templateData) (string, error) {
	data.Language = b.language
	var doc bytes.Buffer
	if err := b.templates[kind].ExecuteTemplate(&doc, string(kind), data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", kind, err)
	}
	return doc.String(), nil
}

// TextPrompt renders the text-only prompt.
func (b *Builder) TextPrompt(message string) (string, error) {
	return b.render(model.KindText, templateData{Message: message})
}

// ImagePrompt renders the single image prompt around the extracted content.
func (b *Builder) ImagePrompt(message string, imageContent string) (string, error) {
	return b.render(model.KindImage, templateData{Message: message, ImageContent: imageContent})
}

// VideoPrompt renders the video prompt with its synthetic timeline.
func (b *Builder) VideoPrompt(message string, video *model.VideoDigest) (string, error) {
	duration := video.Metadata.Duration
	return b.render(model.KindVideo, templateData{
		Message:  message,
		Minutes:  duration / 60,
		Seconds:  duration % 60,
		Timeline: BuildVideoTimeline(video.Captions, duration),
	})
}

// MixedPrompt renders the prompt for several images and videos.
func (b *Builder) MixedPrompt(message string, images []string, videos []*model.VideoDigest) (string, error) {
	return b.render(model.KindMixed, templateData{
		Message:      message,
		MediaContext: MixedMediaContext(images, videos),
	})
}

// Build renders the prompt of mode.
func (b *Builder) Build(mode model.Mode, in Input) (string, error) {
	switch mode {
	case model.ModeText:
		return b.TextPrompt(in.Message)
	case model.ModeImage:
		return b.ImagePrompt(in.Message, in.ImageContent)
	case model.ModeVideo:
		if len(in.Videos) == 0 {
			return "", fmt.Errorf("video prompt requires a video digest")
		}
		return b.VideoPrompt(in.Message, in.Videos[0])
	case model.ModeMultiImage, model.ModeMixed:
		return b.MixedPrompt(in.Message, in.Images, in.Videos)
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}
