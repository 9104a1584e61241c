package contacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_Lookup(t *testing.T) {
	d := New(
		Contact{Name: "University of Lagos", Email: "registrar@unilag.edu.ng"},
		Contact{Name: "MIT", Email: "registrar@mit.edu"},
		Contact{Name: "Massachusetts Institute of Technology", Email: "records@mit.edu"},
	)

	tests := []struct {
		name      string
		query     string
		wantEmail string
		wantFound bool
	}{
		{"exact", "MIT", "registrar@mit.edu", true},
		{"case and space", "  university of lagos ", "registrar@unilag.edu.ng", true},
		{"query contains entry", "The University of Lagos, Akoka", "registrar@unilag.edu.ng", true},
		{"entry contains query", "Institute of Technology", "records@mit.edu", true},
		{"miss", "Sorbonne", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := d.Lookup(tt.query)
			assert.Equal(t, tt.wantFound, ok)
			assert.Equal(t, tt.wantEmail, c.Email)
		})
	}
	assert.Equal(t, 3, d.Len())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "contacts.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
universities:
  University of Lagos:
    email: registrar@unilag.edu.ng
    country: Nigeria
    verification_department: Academic Records
`), 0o644))

	jsonPath := filepath.Join(dir, "contacts.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"universities":{"MIT":{"email":"registrar@mit.edu"}}}`), 0o644))

	d, err := Load(yamlPath)
	require.NoError(t, err)
	c, ok := d.Lookup("university of lagos")
	require.True(t, ok)
	assert.Equal(t, Contact{
		Name:                   "University of Lagos",
		Email:                  "registrar@unilag.edu.ng",
		Country:                "Nigeria",
		VerificationDepartment: "Academic Records",
	}, c)

	d, err = Load(jsonPath)
	require.NoError(t, err)
	_, ok = d.Lookup("MIT")
	assert.True(t, ok)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDirectory_NilLookup(t *testing.T) {
	var d *Directory
	_, ok := d.Lookup("MIT")
	assert.False(t, ok)
	assert.Zero(t, d.Len())
}
