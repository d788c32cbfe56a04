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

// Package cloud contains data structures and utilities for interacting with Google Cloud services.
// This file defines the reference to an uploaded attachment once it has been
// archived to Google Cloud Storage.
package cloud

import (
	"fmt"
	"strings"
)

// GetGCSObjectName returns the context key under which the archived objects
// of a turn are stored.
func GetGCSObjectName() string {
	return "__GCS__OBJ__"
}

// GCSObject is a simplified reference to an archived object.
type GCSObject struct {
	Bucket   string `json:"bucket"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// URI returns the gs:// form of the object.
func (o *GCSObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// ParseGCSURI splits a gs://bucket/object URI.
func ParseGCSURI(uri string) (*GCSObject, error) {
	path, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return nil, fmt.Errorf("invalid GCS URI format: %s", uri)
	}
	bucket, name, found := strings.Cut(path, "/")
	if !found || bucket == "" || name == "" {
		return nil, fmt.Errorf("invalid GCS URI: unable to determine bucket and object from %s", uri)
	}
	return &GCSObject{Bucket: bucket, Name: name}, nil
}
