package promptregistry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ReadsYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "suggest.yaml"), []byte(`
taskType: suggest
template: "Suggest values for {{.fields}}"
groundingTools: false
fieldVocabulary: [coreDuties, benefits, mustHaves]
`), 0o600))

	r := New()
	require.NoError(t, r.Load(dir))

	p := r.Resolve("suggest")
	assert.Equal(t, "suggest", p.TaskType)
	assert.Contains(t, p.Template, "Suggest values")
	assert.Len(t, p.FieldVocabulary, 3)
}

func TestResolve_UnknownTaskReturnsSynthetic(t *testing.T) {
	r := New()
	p := r.Resolve("some_unregistered_task")

	assert.Equal(t, "some_unregistered_task", p.TaskType)
	assert.Empty(t, p.Template)
	assert.False(t, p.HasOutputSchema())
}

func TestRegister_Programmatic(t *testing.T) {
	r := New()
	r.Register(Prompt{TaskType: "channels", Template: "Recommend channels", GroundingTools: true})

	p := r.Resolve("channels")
	assert.True(t, p.GroundingTools)
}
