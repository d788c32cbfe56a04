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

package cor_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcCommand adapts a function into a command for chain tests.
type funcCommand struct {
	cor.BaseCommand
	run        func(context cor.Context)
	executable bool
}

func newFuncCommand(name string, run func(context cor.Context)) *funcCommand {
	return &funcCommand{BaseCommand: *cor.NewBaseCommand(name), run: run, executable: true}
}

func (f *funcCommand) IsExecutable(context cor.Context) bool {
	return f.executable
}

func (f *funcCommand) Execute(context cor.Context) {
	f.run(context)
}

func TestChainPipesOutputToInput(t *testing.T) {
	chain := cor.NewBaseChain("pipe")
	chain.AddCommand(newFuncCommand("first", func(c cor.Context) {
		c.Add(cor.CtxOut, "hello")
	}))
	chain.AddCommand(newFuncCommand("second", func(c cor.Context) {
		c.Add(cor.CtxOut, c.Get(cor.CtxIn).(string)+" world")
	}))

	ctx := cor.NewBaseContext()
	chain.Execute(ctx)

	assert.False(t, ctx.HasErrors())
	assert.Equal(t, "hello world", ctx.Get(cor.CtxIn))
	assert.Nil(t, ctx.Get(cor.CtxOut))
	assert.Equal(t, []string{"first", "second"}, chain.Commands())
}

func TestChainStopsOnFirstError(t *testing.T) {
	ran := make([]string, 0)
	chain := cor.NewBaseChain("stop")
	chain.AddCommand(newFuncCommand("fails", func(c cor.Context) {
		ran = append(ran, "fails")
		c.AddError("fails", errors.New("boom"))
	}))
	chain.AddCommand(newFuncCommand("never", func(c cor.Context) {
		ran = append(ran, "never")
	}))

	ctx := cor.NewBaseContext()
	chain.Execute(ctx)

	assert.Equal(t, []string{"fails"}, ran)
	require.Error(t, ctx.FirstError())
	assert.EqualError(t, ctx.FirstError(), "fails: boom")
}

func TestChainContinueOnFailure(t *testing.T) {
	ran := 0
	chain := cor.NewBaseChain("continue")
	chain.ContinueOnFailure(true)
	chain.AddCommand(newFuncCommand("a", func(c cor.Context) {
		ran++
		c.AddError("a", errors.New("first"))
	}))
	chain.AddCommand(newFuncCommand("b", func(c cor.Context) {
		ran++
		c.AddError("b", errors.New("second"))
	}))

	ctx := cor.NewBaseContext()
	chain.Execute(ctx)

	assert.Equal(t, 2, ran)
	assert.Len(t, ctx.GetErrors(), 2)
	assert.EqualError(t, ctx.FirstError(), "a: first")
	assert.EqualError(t, ctx.Err(), "a: first\nb: second")
}

func TestChainSkipsCommandsThatAreNotExecutable(t *testing.T) {
	skipped := newFuncCommand("skipped", func(c cor.Context) {
		c.Add(cor.CtxOut, "should not run")
	})
	skipped.executable = false

	chain := cor.NewBaseChain("skip")
	chain.AddCommand(newFuncCommand("first", func(c cor.Context) {
		c.Add(cor.CtxOut, "kept")
	}))
	chain.AddCommand(skipped)

	ctx := cor.NewBaseContext()
	chain.Execute(ctx)

	assert.False(t, ctx.HasErrors())
	assert.Equal(t, "kept", ctx.Get(cor.CtxIn))
}

func TestContextCloseReleasesResources(t *testing.T) {
	file := filepath.Join(t.TempDir(), "frame.bin")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	order := make([]int, 0)
	ctx := cor.NewBaseContext()
	ctx.AddTempFile(file)
	ctx.AddCloser(func() error { order = append(order, 1); return nil })
	ctx.AddCloser(func() error { order = append(order, 2); return errors.New("ignored") })
	ctx.Close()

	_, err := os.Stat(file)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, []int{2, 1}, order)
	assert.Empty(t, ctx.GetTempFiles())
}

func TestValue(t *testing.T) {
	ctx := cor.NewBaseContext()
	ctx.Add("n", 3)

	n, ok := cor.Value[int](ctx, "n")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = cor.Value[string](ctx, "n")
	assert.False(t, ok)
	_, ok = cor.Value[int](ctx, "missing")
	assert.False(t, ok)
}
