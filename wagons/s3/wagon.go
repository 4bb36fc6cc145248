// Copyright 2025 The blobwagon Authors
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

// Package s3 implements the wagon contract for Amazon S3 and S3 compatible
// services such as MinIO.
//
// Repository URLs have the form s3://<bucket>[/<basedir>] with optional
// region, endpoint and force_path_style parameters. The authentication
// user name and password are the access key id and secret; the passphrase,
// when set, is used as the session token.
package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

// Repository parameters
const (
	ParamRegion         = "region"
	ParamEndpoint       = "endpoint"
	ParamForcePathStyle = "force_path_style"
)

// DefaultRegion is used when the repository names none
const DefaultRegion = "us-east-1"

// Wagon transfers artifacts to and from an S3 bucket
type Wagon struct {
	*sdk.BaseWagon
}

// New returns an unconnected S3 wagon
func New() *Wagon {
	return &Wagon{BaseWagon: sdk.NewBaseWagon(base.ProtocolS3, dial)}
}

// NewWagon wraps an existing client. The wagon is returned connected to
// s3://<bucket>[/<basedir>].
func NewWagon(client API, bucket, basedir string) (*Wagon, error) {
	if client == nil || bucket == "" {
		return nil, base.NewWagonError(base.ProtocolS3, "NewWagon", base.ErrConnection, "client and bucket are required", nil)
	}
	basedir = strings.Trim(basedir, "/")
	raw := fmt.Sprintf("%s://%s", base.ProtocolS3, bucket)
	if basedir != "" {
		raw += "/" + basedir
	}
	repo, err := base.ParseRepository(bucket, raw)
	if err != nil {
		return nil, base.NewWagonError(base.ProtocolS3, "NewWagon", base.ErrConnection, "invalid bucket", err)
	}
	store := sdk.NewPrefixedStore(NewStore(client, bucket), basedir)
	return &Wagon{BaseWagon: sdk.NewBaseWagonWithStore(base.ProtocolS3, repo, store)}, nil
}

// NewClient builds an S3 client from the repository parameters
func NewClient(ctx context.Context, repo *base.Repository, auth *base.AuthenticationInfo, proxy *base.ProxyInfo) (*awss3.Client, error) {
	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(repo.Parameter(ParamRegion, DefaultRegion)),
		// Retries happen in the wagon
		awsconfig.WithRetryMaxAttempts(1),
	}
	if auth != nil && (auth.UserName != "" || auth.Password != "") {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(auth.UserName, auth.Password, auth.Passphrase),
		))
	}
	if proxy != nil && proxy.Host != "" {
		loadOptions = append(loadOptions, awsconfig.WithHTTPClient(sdk.NewProxyHTTPClient(proxy)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var clientOptions []func(*awss3.Options)
	if endpoint := repo.Parameter(ParamEndpoint, ""); endpoint != "" {
		clientOptions = append(clientOptions, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if repo.BoolParameter(ParamForcePathStyle) {
		clientOptions = append(clientOptions, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}
	return awss3.NewFromConfig(awsCfg, clientOptions...), nil
}

func dial(ctx context.Context, repo *base.Repository, auth *base.AuthenticationInfo, proxy *base.ProxyInfo) (sdk.Store, error) {
	client, err := NewClient(ctx, repo, auth, proxy)
	if err != nil {
		return nil, err
	}
	return openBucket(ctx, client, repo)
}

func openBucket(ctx context.Context, client API, repo *base.Repository) (sdk.Store, error) {
	bucket := repo.Host()
	if _, err := client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		switch {
		case isAuthError(err):
			return nil, fmt.Errorf("%w: bucket %s: %w", base.ErrAuthentication, bucket, err)
		case isNotFound(err):
			return nil, fmt.Errorf("bucket %s does not exist: %w", bucket, err)
		default:
			return nil, fmt.Errorf("failed to reach bucket %s: %w", bucket, err)
		}
	}
	return sdk.NewPrefixedStore(NewStore(client, bucket), repo.Basedir), nil
}

var _ base.Wagon = (*Wagon)(nil)
