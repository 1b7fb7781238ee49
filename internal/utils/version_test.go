package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBannerVersion(t *testing.T) {
	assert.Equal(t, "1.0", BannerVersion())
}
