package milvus

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeExpr(t *testing.T) {
	assert.Equal(t, "", scopeExpr(nil))
	assert.Equal(t, `document_id in ["doc-a"]`, scopeExpr([]string{"doc-a"}))
	assert.Equal(t, `document_id in ["doc-a", "doc-b"]`, scopeExpr([]string{"doc-a", "doc-b"}))
}

func TestAnnParamsConstruct(t *testing.T) {
	idx, err := entity.NewIndexIvfFlat(entity.IP, 1024)
	require.NoError(t, err)
	assert.Equal(t, entity.IvfFlat, idx.IndexType())

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	require.NoError(t, err)
	assert.NotNil(t, sp)
}
