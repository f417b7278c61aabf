package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/shared"
)

func TestOpen_Memory(t *testing.T) {
	st, err := Open(context.Background(), shared.Config{StoreDriver: "memory", ImageStore: "db"})
	require.NoError(t, err)
	assert.NotNil(t, st.Users)
	assert.NotNil(t, st.Images)
	assert.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, st.Close(context.Background()))
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open(context.Background(), shared.Config{StoreDriver: "sqlite"})
	assert.ErrorContains(t, err, "STORE_DRIVER")

	_, err = Open(context.Background(), shared.Config{StoreDriver: "memory", ImageStore: "ftp"})
	assert.ErrorContains(t, err, "IMAGE_STORE")
}
