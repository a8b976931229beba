// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"errors"
	"fmt"

	apikeys "cloud.google.com/go/apikeys/apiv2"
	"cloud.google.com/go/apikeys/apiv2/apikeyspb"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultKeyDisplayName is the display name of the Maps key looked up
// through Application Default Credentials.
const DefaultKeyDisplayName = "Geocoords Geocoding Key"

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// GoogleAPIKeyFromADC finds the API key named displayName in the project of
// the Application Default Credentials and returns its secret.
func GoogleAPIKeyFromADC(ctx context.Context, displayName string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if displayName == "" {
		displayName = DefaultKeyDisplayName
	}

	creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err != nil {
		return "", fmt.Errorf("finding default credentials: %w", err)
	}

	projectID := creds.ProjectID
	if projectID == "" {
		// user credentials without a quota project
		return "", errors.New("default credentials have no project, run `gcloud auth application-default set-quota-project`")
	}

	client, err := apikeys.NewClient(ctx, option.WithCredentials(creds))
	if err != nil {
		return "", fmt.Errorf("creating apikeys client: %w", err)
	}
	defer client.Close()

	it := client.ListKeys(ctx, &apikeyspb.ListKeysRequest{
		Parent: fmt.Sprintf("projects/%s/locations/global", projectID),
	})

	for {
		key, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return "", describeRPCError("listing keys", err)
		}

		if key.GetDisplayName() != displayName {
			continue
		}

		// ListKeys redacts the secret
		logger.Info("found api key, retrieving secret", zap.String("key", key.GetName()))

		resp, err := client.GetKeyString(ctx, &apikeyspb.GetKeyStringRequest{Name: key.GetName()})
		if err != nil {
			return "", describeRPCError("getting key string", err)
		}

		if resp.GetKeyString() == "" {
			return "", fmt.Errorf("key %q found but its key string is empty", displayName)
		}

		return resp.GetKeyString(), nil
	}

	return "", fmt.Errorf("key with display name %q not found in project %s", displayName, projectID)
}

// describeRPCError adds a hint for the failures users can fix themselves.
func describeRPCError(op string, err error) error {
	switch status.Code(err) {
	case codes.PermissionDenied:
		return fmt.Errorf("%s: permission denied, the account needs apikeys.keys.list and apikeys.keys.getKeyString: %w", op, err)
	case codes.Unauthenticated:
		return fmt.Errorf("%s: not authenticated, run `gcloud auth application-default login`: %w", op, err)
	case codes.NotFound:
		return fmt.Errorf("%s: project not found or API Keys API disabled: %w", op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
