package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nevermiss_server/pkg/errorx"
)

func TestNormalizeAudioContentBare(t *testing.T) {
	got, err := NormalizeAudioContent("QUJDRA==")
	require.NoError(t, err)
	assert.Equal(t, "data:audio/mpeg;base64,QUJDRA==", got)
}

func TestNormalizeAudioContentQuoted(t *testing.T) {
	got, err := NormalizeAudioContent(`"QUJDRA=="`)
	require.NoError(t, err)
	assert.Equal(t, "data:audio/mpeg;base64,QUJDRA==", got)
}

func TestNormalizeAudioContentDataURI(t *testing.T) {
	got, err := NormalizeAudioContent("data:audio/mpeg;base64,QUJDRA==")
	require.NoError(t, err)
	assert.Equal(t, "data:audio/mpeg;base64,QUJDRA==", got)
}

func TestNormalizeAudioContentSpacesBecomePlus(t *testing.T) {
	// URL 解码会把 '+' 变成空格，清洗时必须还原
	got, err := NormalizeAudioContent("QUJD RA==")
	require.NoError(t, err)
	assert.Equal(t, "data:audio/mpeg;base64,QUJD+RA==", got)
}

func TestNormalizeAudioContentStripsNewlines(t *testing.T) {
	got, err := NormalizeAudioContent("QUJD\nRA==\r\n")
	require.NoError(t, err)
	assert.Equal(t, "data:audio/mpeg;base64,QUJDRA==", got)
}

func TestNormalizeAudioContentEmpty(t *testing.T) {
	_, err := NormalizeAudioContent(`""`)
	require.Error(t, err)
	assert.Equal(t, errorx.CodeMalformedReply, errorx.GetCode(err))
}

func TestNormalizeAudioContentBadCharset(t *testing.T) {
	_, err := NormalizeAudioContent("QUJD$#@!")
	require.Error(t, err)
	assert.Equal(t, errorx.CodeMalformedReply, errorx.GetCode(err))
}
