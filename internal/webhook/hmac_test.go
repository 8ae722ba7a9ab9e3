package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	secret := "test-secret-key"
	body := []byte(`{"event":"job.completed","submission_id":"abc"}`)
	sig := Sign(body, secret)
	require.True(t, strings.HasPrefix(sig, "sha256="))

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		wantErr   bool
	}{
		{name: "prefixed", body: body, signature: sig, secret: secret},
		{name: "plain hex", body: body, signature: strings.TrimPrefix(sig, "sha256="), secret: secret},
		{name: "wrong signature", body: body, signature: "sha256=" + strings.Repeat("0", 64), secret: secret, wantErr: true},
		{name: "tampered body", body: []byte(`{"event":"job.completed","submission_id":"xyz"}`), signature: sig, secret: secret, wantErr: true},
		{name: "wrong secret", body: body, signature: sig, secret: "other", wantErr: true},
		{name: "empty signature", body: body, secret: secret, wantErr: true},
		{name: "empty secret", body: body, signature: sig, wantErr: true},
		{name: "not hex", body: body, signature: "sha256=zzzz", secret: secret, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.body, tt.signature, tt.secret)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, "webhook verification failed", err.Error())
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSignIsDeterministic(t *testing.T) {
	body := []byte("payload")
	assert.Equal(t, Sign(body, "k"), Sign(body, "k"))
	assert.NotEqual(t, Sign(body, "k"), Sign(body, "j"))
}
