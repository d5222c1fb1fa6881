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

package network_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlecloudplatform/wasmsand/network"
)

func TestAllowlistGateway_DeniesUnlistedHost(t *testing.T) {
	g := network.NewAllowlistGateway([]string{"example.com"})

	_, err := g.Fetch(context.Background(), "http://evil.test/", "GET", nil, nil)

	var denied *network.ErrHostDenied
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "evil.test", denied.Host)
}

func TestAllowlistGateway_AllowsListedHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	g := network.NewAllowlistGateway([]string{u.Hostname()})

	resp, err := g.Fetch(context.Background(), srv.URL, "", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestAllowlistGateway_AllowsListedHostAmongSeveral(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	g := network.NewAllowlistGateway([]string{"EXAMPLE-NOT-USED", u.Hostname()})

	_, err = g.Fetch(context.Background(), srv.URL, "GET", nil, nil)

	require.NoError(t, err)
}

func TestAllowlistGateway_RejectsInvalidURL(t *testing.T) {
	g := network.NewAllowlistGateway([]string{"example.com"})

	_, err := g.Fetch(context.Background(), "://not-a-url", "GET", nil, nil)

	require.Error(t, err)
}
