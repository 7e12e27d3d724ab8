// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"errors"
	"testing"

	"cloud.google.com/go/apikeys/apiv2/apikeyspb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

func keyListing(keys []*apikeyspb.Key, failAt int) func() (*apikeyspb.Key, error) {
	i := 0

	return func() (*apikeyspb.Key, error) {
		if i == failAt {
			return nil, errors.New("permission denied")
		}

		if i >= len(keys) {
			return nil, iterator.Done
		}

		i++

		return keys[i-1], nil
	}
}

func TestFindKeyName(t *testing.T) {
	keys := []*apikeyspb.Key{
		{Name: "projects/p/locations/global/keys/a", DisplayName: "Browser key"},
		{Name: "projects/p/locations/global/keys/b", DisplayName: DefaultKeyDisplayName},
	}

	tests := []struct {
		name        string
		displayName string
		failAt      int
		want        string
		wantErr     string
	}{
		{name: "found", displayName: DefaultKeyDisplayName, failAt: -1, want: "projects/p/locations/global/keys/b"},
		{name: "missing", displayName: "Other", failAt: -1, wantErr: "not found"},
		{name: "listing error", displayName: DefaultKeyDisplayName, failAt: 1, wantErr: "listing keys: permission denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := findKeyName(keyListing(keys, tt.failAt), tt.displayName)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
