// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package sdk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugmesh/plugmesh/pkg/sdk"
)

func TestParams_String(t *testing.T) {
	p := sdk.Params{"name": "widget"}

	assert.Equal(t, "widget", p.String("name"))
	assert.Equal(t, "", p.String("missing"))
}

func TestParams_Int(t *testing.T) {
	tests := []struct {
		name    string
		params  sdk.Params
		key     string
		want    int
		wantErr bool
	}{
		{name: "valid", params: sdk.Params{"x": "42"}, key: "x", want: 42},
		{name: "negative", params: sdk.Params{"x": "-7"}, key: "x", want: -7},
		{name: "not a number", params: sdk.Params{"x": "abc"}, key: "x", wantErr: true},
		{name: "missing", params: sdk.Params{}, key: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.params.Int(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParams_Bool(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    bool
		wantErr bool
	}{
		{name: "true", raw: "true", want: true},
		{name: "false", raw: "false", want: false},
		{name: "numeric true", raw: "1", want: true},
		{name: "garbage", raw: "yes please", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sdk.Params{"flag": tt.raw}
			got, err := p.Bool("flag")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("missing", func(t *testing.T) {
		_, err := sdk.Params{}.Bool("flag")
		require.Error(t, err)
	})
}
