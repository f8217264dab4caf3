// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package lab

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// credential lets Azure SDK clients authenticate with the lab's confidential client.
type credential struct {
	app tokenProvider
}

var _ azcore.TokenCredential = credential{}

func newCredential(app tokenProvider) credential {
	return credential{app: app}
}

// GetToken implements azcore.TokenCredential.
func (c credential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if len(opts.Scopes) == 0 {
		return azcore.AccessToken{}, errors.New("GetToken() requires at least one scope")
	}
	result, err := c.app.AcquireTokenSilent(ctx, opts.Scopes)
	if err != nil {
		result, err = c.app.AcquireTokenByCredential(ctx, opts.Scopes)
		if err != nil {
			return azcore.AccessToken{}, err
		}
	}
	return azcore.AccessToken{Token: result.AccessToken, ExpiresOn: result.ExpiresOn}, nil
}
