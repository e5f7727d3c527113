package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPush_roundtrip(t *testing.T) {
	keys, err := GeneratePushKeys()
	require.NoError(t, err)
	require.Len(t, keys.AuthSecret, 16)

	payload := []byte(`{"title":"New hostel","body":"Sea Breeze was added"}`)
	msg, err := EncryptPush(payload, keys.Private.PublicKey(), keys.AuthSecret)
	require.NoError(t, err)

	// salt(16) + rs(4) + idlen(1) + key(65) + ciphertext
	assert.Equal(t, byte(65), msg[20])

	got, err := DecryptPush(msg, keys)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestPush_wrongReceiver(t *testing.T) {
	alice, err := GeneratePushKeys()
	require.NoError(t, err)
	bob, err := GeneratePushKeys()
	require.NoError(t, err)

	msg, err := EncryptPush([]byte("for alice"), alice.Private.PublicKey(), alice.AuthSecret)
	require.NoError(t, err)

	_, err = DecryptPush(msg, bob)
	assert.Error(t, err)
}

func TestPush_wrongAuthSecret(t *testing.T) {
	keys, err := GeneratePushKeys()
	require.NoError(t, err)

	msg, err := EncryptPush([]byte("hello"), keys.Private.PublicKey(), make([]byte, 16))
	require.NoError(t, err)

	_, err = DecryptPush(msg, keys)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestPush_malformed(t *testing.T) {
	keys, err := GeneratePushKeys()
	require.NoError(t, err)

	_, err = DecryptPush([]byte("short"), keys)
	assert.ErrorIs(t, err, errMalformedPush)

	header := make([]byte, 21)
	header[20] = 65 // claims a key that is not there
	_, err = DecryptPush(header, keys)
	assert.ErrorIs(t, err, errMalformedPush)
}

func TestPush_tooLarge(t *testing.T) {
	keys, err := GeneratePushKeys()
	require.NoError(t, err)

	_, err = EncryptPush(make([]byte, 5000), keys.Private.PublicKey(), keys.AuthSecret)
	assert.Error(t, err)
}

func TestParseP256PublicKey(t *testing.T) {
	keys, err := GeneratePushKeys()
	require.NoError(t, err)

	_, err = ParseP256PublicKey(keys.Private.PublicKey().Bytes())
	assert.NoError(t, err)

	_, err = ParseP256PublicKey([]byte{0x04, 0x01})
	assert.Error(t, err)
}
