// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"fmt"

	apikeys "cloud.google.com/go/apikeys/apiv2"
	"cloud.google.com/go/apikeys/apiv2/apikeyspb"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
)

// DefaultKeyDisplayName is the display name of the Maps key looked up through ADC.
const DefaultKeyDisplayName = "ToiletShare Geocoding Key"

// ADCKeyOptions selects the API key retrieved by GoogleKeyFromADC.
type ADCKeyOptions struct {
	// ProjectID overrides the project found in the default credentials.
	ProjectID   string
	DisplayName string
}

// GoogleKeyFromADC fetches the Maps API key of the project using Application
// Default Credentials. ListKeys redacts key strings, so the secret is read
// with GetKeyString once the key is found.
func GoogleKeyFromADC(ctx context.Context, opts ADCKeyOptions) (string, error) {
	if opts.DisplayName == "" {
		opts.DisplayName = DefaultKeyDisplayName
	}

	projectID := opts.ProjectID
	if projectID == "" {
		creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return "", fmt.Errorf("finding default credentials: %w", err)
		}

		projectID = creds.ProjectID
	}

	if projectID == "" {
		return "", errors.New("no project id in default credentials; set google.project_id")
	}

	client, err := apikeys.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating apikeys client: %w", err)
	}
	defer client.Close()

	it := client.ListKeys(ctx, &apikeyspb.ListKeysRequest{
		Parent: fmt.Sprintf("projects/%s/locations/global", projectID),
	})

	name, err := findKeyName(it.Next, opts.DisplayName)
	if err != nil {
		return "", fmt.Errorf("project %s: %w", projectID, err)
	}

	resp, err := client.GetKeyString(ctx, &apikeyspb.GetKeyStringRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("getting key string: %w", err)
	}

	if resp.GetKeyString() == "" {
		return "", fmt.Errorf("key %q has an empty key string", name)
	}

	return resp.GetKeyString(), nil
}

// findKeyName walks a key listing until a key with displayName shows up and
// returns its resource name.
func findKeyName(next func() (*apikeyspb.Key, error), displayName string) (string, error) {
	for {
		key, err := next()
		if errors.Is(err, iterator.Done) {
			return "", fmt.Errorf("key with display name %q not found", displayName)
		}

		if err != nil {
			return "", fmt.Errorf("listing keys: %w", err)
		}

		if key.GetDisplayName() == displayName {
			return key.GetName(), nil
		}
	}
}
