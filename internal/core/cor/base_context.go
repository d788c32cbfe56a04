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

package cor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// BaseContext is the default implementation of Context. It is owned by a
// single request and is not safe for concurrent use.
type BaseContext struct {
	data       map[string]interface{}
	errors     map[string]error
	errorOrder []string // Command names in the order their first error was recorded.
	tempFiles  []string
	closers    []func() error
	context    context.Context
}

// NewBaseContext creates an empty Context bound to context.Background.
// Callers normally replace the Go context with a request or span context.
func NewBaseContext() Context {
	return &BaseContext{
		data:      make(map[string]interface{}),
		errors:    make(map[string]error),
		tempFiles: make([]string, 0),
		context:   context.Background(),
	}
}

// SetContext sets the underlying Go context.
func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

// GetContext returns the underlying Go context.
func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// Close releases tracked resources in reverse order of registration and then
// removes every tracked temporary file.
func (c *BaseContext) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			slog.Warn("failed to release resource", "error", err)
		}
	}
	c.closers = nil

	for _, file := range c.tempFiles {
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove temporary file", "file", file, "error", err)
		}
	}
	c.tempFiles = c.tempFiles[:0]
}

// Add stores a value under key.
func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

// AddTempFile tracks a temporary file for removal on Close.
func (c *BaseContext) AddTempFile(file string) {
	c.tempFiles = append(c.tempFiles, file)
}

// GetTempFiles returns the tracked temporary files.
func (c *BaseContext) GetTempFiles() []string {
	return c.tempFiles
}

// AddCloser tracks a resource for release on Close.
func (c *BaseContext) AddCloser(closer func() error) {
	if closer != nil {
		c.closers = append(c.closers, closer)
	}
}

// AddError records err against the command name. A second error from the
// same command is joined onto the first one.
func (c *BaseContext) AddError(key string, err error) {
	if err == nil {
		return
	}
	if existing, ok := c.errors[key]; ok {
		c.errors[key] = errors.Join(existing, err)
		return
	}
	c.errors[key] = err
	c.errorOrder = append(c.errorOrder, key)
}

// GetErrors returns the recorded errors keyed by command name.
func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

// FirstError returns the earliest recorded error wrapped with its command name.
func (c *BaseContext) FirstError() error {
	if len(c.errorOrder) == 0 {
		return nil
	}
	key := c.errorOrder[0]
	return fmt.Errorf("%s: %w", key, c.errors[key])
}

// Err joins every recorded error in the order it was recorded.
func (c *BaseContext) Err() error {
	if len(c.errorOrder) == 0 {
		return nil
	}
	errs := make([]error, 0, len(c.errorOrder))
	for _, key := range c.errorOrder {
		errs = append(errs, fmt.Errorf("%s: %w", key, c.errors[key]))
	}
	return errors.Join(errs...)
}

// Get returns the value stored under key.
func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

// Remove deletes key.
func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

// HasErrors reports whether any error was recorded.
func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}

// Value returns the value stored under key asserted to T. The boolean is
// false when the key is missing or holds another type.
func Value[T any](context Context, key string) (T, bool) {
	v, ok := context.Get(key).(T)
	return v, ok
}
