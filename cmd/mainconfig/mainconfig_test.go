package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/carepulse/internal/config"
)

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{AWSRegion: "us-west-2", AWSAccessKeyID: "AKIA", AWSSecretAccessKey: "secret"}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", awsCfg.Region)
	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIA", creds.AccessKeyID)
	assert.Nil(t, awsCfg.EndpointResolverWithOptions)
}

func TestLoadAWSConfigEndpointOverride(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{AWSRegion: "us-east-1", AWSEndpointOverride: "http://localhost:4566"}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, awsCfg.EndpointResolverWithOptions)

	endpoint, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(s3.ServiceID, "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4566", endpoint.URL)

	_, err = awsCfg.EndpointResolverWithOptions.ResolveEndpoint("DynamoDB", "us-east-1")
	assert.Error(t, err)
}
