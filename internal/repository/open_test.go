package repository

import (
	"context"
	"testing"

	"habittracker/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenMemory(t *testing.T) {
	s, err := Open(context.Background(), OpenOptions{Driver: DriverMemory}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())
}

func TestOpenUnknownDriver(t *testing.T) {
	opts := OpenOptions{Driver: "sqlite", FallbackToMemory: true}
	_, err := Open(context.Background(), opts, zap.NewNop())
	assert.Error(t, err, "a misconfigured driver must not fall back to memory")
}

func TestOpenUnreachablePostgres(t *testing.T) {
	opts := OpenOptions{
		Driver: DriverPostgres,
		DB:     config.DBConfig{Host: "127.0.0.1", Port: 1, User: "u", Password: "p", Name: "habits"},
	}
	_, err := Open(context.Background(), opts, zap.NewNop())
	assert.Error(t, err)

	opts.FallbackToMemory = true
	s, err := Open(context.Background(), opts, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())
}
