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

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/commands"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
)

// MediaService archives uploads to Cloud Storage and hands out signed URLs
// for them.
type MediaService struct {
	StorageClient *storage.Client                   // Client for interacting with Google Cloud Storage.
	IAMClient     *credentials.IamCredentialsClient // Optional; signs URLs through the IAM Credentials API.
	SignerEmail   string                            // The service account email used to sign URLs.
	Bucket        string                            // Destination bucket of the archive.
	ObjectPrefix  string                            // Prepended to every object name.
	SignedURLTTL  time.Duration                     // Default lifetime of signed URLs.
}

// ErrForbiddenObject is returned when a signed URL is requested for an object
// outside the caller's session folder of the upload bucket.
var ErrForbiddenObject = errors.New("object does not belong to the session")

// ObjectName returns the name an upload is archived under:
// <prefix>/<session>/<random id>-<file name>.
func ObjectName(prefix string, sessionID string, item *model.MediaItem) string {
	base := path.Base(strings.ReplaceAll(item.Filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload." + commands.Extension(item)
	}
	return path.Join(prefix, sessionID, fmt.Sprintf("%s-%s", uuid.NewString(), base))
}

// Archive writes item to the bucket.
func (s *MediaService) Archive(ctx context.Context, sessionID string, item *model.MediaItem) (*cloud.GCSObject, error) {
	name := ObjectName(s.ObjectPrefix, sessionID, item)
	mimeType := commands.MIMEType(item)

	writer := s.StorageClient.Bucket(s.Bucket).Object(name).NewWriter(ctx)
	writer.ContentType = mimeType
	writer.Metadata = map[string]string{"session_id": sessionID, "filename": item.Filename}

	written, err := writer.Write(item.Data)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to copy %s to GCS or partial write: %d total bytes: %w", item.Filename, written, err)
	}
	// Close finalizes the upload; the object does not exist before it returns.
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer for %s: %w", name, err)
	}

	obj := &cloud.GCSObject{Bucket: s.Bucket, Name: name, MIMEType: mimeType, Size: int64(written)}
	slog.InfoContext(ctx, "archived upload", "uri", obj.URI(), "bytes", written)
	return obj, nil
}

// AuthorizeObject checks that gcsURI names an upload of sessionID: the object
// must live in Bucket under <ObjectPrefix>/<sessionID>/.
func (s *MediaService) AuthorizeObject(gcsURI string, sessionID string) (*cloud.GCSObject, error) {
	obj, err := cloud.ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}
	if sessionID == "" || strings.Contains(sessionID, "/") {
		return nil, ErrForbiddenObject
	}
	if obj.Bucket != s.Bucket || path.Clean(obj.Name) != obj.Name {
		return nil, ErrForbiddenObject
	}
	if !strings.HasPrefix(obj.Name, path.Join(s.ObjectPrefix, sessionID)+"/") {
		return nil, ErrForbiddenObject
	}
	return obj, nil
}

// GenerateSignedURL returns a V4 signed GET URL for an upload of sessionID.
// When an IAM client is configured the signature is produced by SignBlob;
// otherwise the storage client signs with its own credentials. A non positive
// expires uses SignedURLTTL.
func (s *MediaService) GenerateSignedURL(ctx context.Context, gcsURI string, sessionID string, expires time.Duration) (string, error) {
	obj, err := s.AuthorizeObject(gcsURI, sessionID)
	if err != nil {
		return "", err
	}
	if expires <= 0 {
		expires = s.SignedURLTTL
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expires),
	}
	if s.IAMClient != nil && s.SignerEmail != "" {
		opts.GoogleAccessID = s.SignerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			req := &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: b,
			}
			resp, err := s.IAMClient.SignBlob(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}

	u, err := s.StorageClient.Bucket(obj.Bucket).SignedURL(obj.Name, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).Object(%q).SignedURL: %w", obj.Bucket, obj.Name, err)
	}
	slog.DebugContext(ctx, "generated signed url", "uri", gcsURI, "expires_in", expires.String())
	return u, nil
}
