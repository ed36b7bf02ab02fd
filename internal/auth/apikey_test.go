package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGate_Check(t *testing.T) {
	g := NewGate("s3cret-token")

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"exact", "s3cret-token", false},
		{"missing", "", true},
		{"wrong", "other", true},
		{"case differs", "S3CRET-TOKEN", true},
		{"prefix", "s3cret", true},
		{"trailing space", "s3cret-token ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrForbidden)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGate_EmptySecretRejectsAll(t *testing.T) {
	g := NewGate("")
	assert.ErrorIs(t, g.Check(""), ErrForbidden)
	assert.ErrorIs(t, g.Check("anything"), ErrForbidden)
}
