package aes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher, err := NewCipher("any-length-secret")
	require.NoError(t, err)

	plaintext := "ya29.a0AfB_byDummyAccessToken"
	enc, err := cipher.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, enc)

	dec, err := cipher.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, plaintext, dec)
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	cipher, err := NewCipher("secret")
	require.NoError(t, err)

	// 随机 nonce 保证相同明文每次密文不同
	a, err := cipher.Encrypt("same input")
	require.NoError(t, err)
	b, err := cipher.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	c1, err := NewCipher("key-one")
	require.NoError(t, err)
	c2, err := NewCipher("key-two")
	require.NoError(t, err)

	enc, err := c1.Encrypt("sensitive")
	require.NoError(t, err)
	_, err = c2.Decrypt(enc)
	assert.Error(t, err)
}

func TestDecryptGarbageFails(t *testing.T) {
	cipher, err := NewCipher("secret")
	require.NoError(t, err)

	_, err = cipher.Decrypt("not-base64!!!")
	assert.Error(t, err)
	_, err = cipher.Decrypt("QUJD") // 合法 base64 但长度不足 nonce
	assert.Error(t, err)
}
