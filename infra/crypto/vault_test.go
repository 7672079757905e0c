package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVault_EncryptDecryptRoundTrip(t *testing.T) {
	vault := NewVault("test-master-key")

	tests := []struct {
		name      string
		plaintext string
	}{
		{"simple string", "hello world"},
		{"empty string", ""},
		{"json credentials", `{"clientId":"abc","clientSecret":"shhh","subscriptionKey":"k","merchantSerialNumber":"123456"}`},
		{"unicode", "øre på 99,50 kr — ✓"},
		{"long payload", strings.Repeat("paygate", 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := vault.Encrypt([]byte(tt.plaintext))
			require.NoError(t, err)

			decrypted, err := vault.Decrypt(blob)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, string(decrypted))
		})
	}
}

func TestVault_BlobFormat(t *testing.T) {
	vault := NewVault("test-master-key")

	blob, err := vault.Encrypt([]byte("sensitive"))
	require.NoError(t, err)

	parts := strings.Split(blob, ":")
	require.Len(t, parts, 3)

	// iv is 12 bytes, tag is 16 bytes, hex encoded
	assert.Len(t, parts[0], 24)
	assert.Len(t, parts[1], 32)
	assert.NotEmpty(t, parts[2])

	assert.Equal(t, strings.ToLower(blob), blob)
	assert.NotContains(t, blob, "sensitive")
}

func TestVault_EncryptIsNonDeterministic(t *testing.T) {
	vault := NewVault("test-master-key")

	first, err := vault.Encrypt([]byte("same input"))
	require.NoError(t, err)
	second, err := vault.Encrypt([]byte("same input"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVault_DecryptRejectsTampering(t *testing.T) {
	vault := NewVault("test-master-key")

	blob, err := vault.Encrypt([]byte(`{"secretKey":"sk_test_123"}`))
	require.NoError(t, err)
	parts := strings.Split(blob, ":")

	flip := func(s string) string {
		b := []byte(s)
		if b[0] == 'a' {
			b[0] = 'b'
		} else {
			b[0] = 'a'
		}
		return string(b)
	}

	tests := []struct {
		name string
		blob string
	}{
		{"tampered iv", flip(parts[0]) + ":" + parts[1] + ":" + parts[2]},
		{"tampered tag", parts[0] + ":" + flip(parts[1]) + ":" + parts[2]},
		{"tampered ciphertext", parts[0] + ":" + parts[1] + ":" + flip(parts[2])},
		{"missing segment", parts[0] + ":" + parts[1]},
		{"extra segment", blob + ":deadbeef"},
		{"not hex", "zz:" + parts[1] + ":" + parts[2]},
		{"empty", ""},
		{"garbage", "not-an-encrypted-blob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vault.Decrypt(tt.blob)
			assert.Error(t, err)
		})
	}
}

func TestVault_DecryptRejectsWrongKey(t *testing.T) {
	blob, err := NewVault("key-one").Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = NewVault("key-two").Decrypt(blob)
	assert.Error(t, err)
}

func TestVault_Insecure(t *testing.T) {
	assert.True(t, NewVault("").Insecure())
	assert.False(t, NewVault("a-real-master-key").Insecure())
}

func TestVault_JSONRoundTrip(t *testing.T) {
	vault := NewVault("test-master-key")

	type creds struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}

	blob, err := vault.EncryptJSON(creds{ClientID: "id", ClientSecret: "secret"})
	require.NoError(t, err)

	var out creds
	require.NoError(t, vault.DecryptJSON(blob, &out))
	assert.Equal(t, "id", out.ClientID)
	assert.Equal(t, "secret", out.ClientSecret)
}

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken(32)
	require.NoError(t, err)
	assert.Len(t, token, 64)

	other, err := GenerateSecureToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestSecretEqual(t *testing.T) {
	assert.True(t, SecretEqual("secret", "secret"))
	assert.False(t, SecretEqual("secret", "Secret"))
	assert.False(t, SecretEqual("", "secret"))
	assert.True(t, SecretEqual("", ""))
}

func TestHashSecret(t *testing.T) {
	hash := HashSecret("value")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashSecret("value"))
	assert.NotEqual(t, hash, HashSecret("other"))
}
