// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlecloudplatform/wasmsand/registry"
)

func TestRegistry_InstallAndLookup(t *testing.T) {
	r := registry.New(0, nil)

	err := r.Install("jq", []byte("\x00asm"), "https://example.com/jq.wasm")
	require.NoError(t, err)

	mod, ok := r.Lookup("jq")
	require.True(t, ok)
	assert.Equal(t, "jq", mod.Name)
	assert.Equal(t, "https://example.com/jq.wasm", mod.URL)
}

func TestRegistry_LookupMissingReturnsFalse(t *testing.T) {
	r := registry.New(0, nil)

	_, ok := r.Lookup("nope")

	assert.False(t, ok)
}

func TestRegistry_InstallEnforcesSizeCap(t *testing.T) {
	r := registry.New(4, nil)

	err := r.Install("big", []byte("toolarge"), "https://example.com/big.wasm")

	var capErr *registry.ErrSizeCapExceeded
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 4, capErr.Limit)
}

func TestRegistry_InstallEnforcesHostAllowlist(t *testing.T) {
	r := registry.New(0, func(url string) bool { return url == "https://good.example/mod.wasm" })

	assert.Error(t, r.Install("bad", []byte("x"), "https://evil.example/mod.wasm"))
	assert.NoError(t, r.Install("good", []byte("x"), "https://good.example/mod.wasm"))
}

func TestRegistry_RemoveAndList(t *testing.T) {
	r := registry.New(0, nil)
	require.NoError(t, r.Install("a", []byte("x"), "https://example.com/a.wasm"))
	require.NoError(t, r.Install("b", []byte("x"), "https://example.com/b.wasm"))

	r.Remove("a")

	names := r.List()
	assert.ElementsMatch(t, []string{"b"}, names)
}

func TestParseSourceHost(t *testing.T) {
	cases := map[string]string{
		"https://example.com/tool.wasm": "example.com",
		"http://example.com:8080/x":     "example.com",
		"example.com/tool.wasm":         "example.com",
		"example.com":                   "example.com",
	}
	for in, want := range cases {
		assert.Equal(t, want, registry.ParseSourceHost(in), in)
	}
}
