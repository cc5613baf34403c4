package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/forestcheck/internal/config"
)

func TestVerifyOptions(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	assert.Len(t, cfg.VerifyOptions(), 5)

	cfg.Pool.Workers = 3
	assert.Len(t, cfg.VerifyOptions(), 6)
	assert.Len(t, cfg.BoxOptions(), 1)
}
