package registry

import (
	"testing"

	"github.com/benmeehan/tms-heartbeat/internal/constants"
	"github.com/stretchr/testify/assert"
)

func TestParseServerType(t *testing.T) {
	tests := []struct {
		in      string
		want    constants.ServerType
		wantErr bool
	}{
		{in: "pub", want: constants.ServerTypePub},
		{in: "sub", want: constants.ServerTypeSub},
		{in: "foo", wantErr: true},
		{in: "", wantErr: true},
		{in: "PUB", wantErr: true},
		{in: " sub", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseServerType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "invalid servertype")
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
