package ado

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr string
	}{
		{
			name: "valid",
			cfg: ClientConfig{
				OrganizationURL:     "https://dev.azure.com/acme",
				PersonalAccessToken: "pat",
			},
		},
		{
			name:    "missing organization URL",
			cfg:     ClientConfig{PersonalAccessToken: "pat"},
			wantErr: "organization URL is required",
		},
		{
			name:    "missing token",
			cfg:     ClientConfig{OrganizationURL: "https://dev.azure.com/acme"},
			wantErr: "personal access token is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
