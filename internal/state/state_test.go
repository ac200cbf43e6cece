package state

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"driftwatch/internal/apperrors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	body  string
	err   error
	input *s3.GetObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestReader_ToolVersion(t *testing.T) {
	fake := &fakeS3{body: `{"version":4,"terraform_version":"1.2.3","serial":7,"lineage":"abc","resources":[]}`}
	r := NewReader(fake, "state-bucket", "env/prod.tfstate")

	v, err := r.ToolVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)
	assert.Equal(t, "state-bucket", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "env/prod.tfstate", aws.ToString(fake.input.Key))
}

func TestReader_Errors(t *testing.T) {
	cases := []struct {
		name string
		fake *fakeS3
		code apperrors.Code
	}{
		{"s3 failure", &fakeS3{err: errors.New("access denied")}, apperrors.CodeDownload},
		{"not json", &fakeS3{body: "<html>"}, apperrors.CodeStateFormat},
		{"missing version", &fakeS3{body: `{"version":4}`}, apperrors.CodeStateFormat},
		{"blank version", &fakeS3{body: `{"terraform_version":"  "}`}, apperrors.CodeStateFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewReader(tc.fake, "b", "k").ToolVersion(context.Background())
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, tc.code), "got %v", err)
		})
	}
}
