package xerrors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("包装后保留错误链", func(t *testing.T) {
		base := New("connection refused")
		wrapped := Wrap(base, "dial backend")

		require.Error(t, wrapped)
		assert.True(t, Is(wrapped, base))
		assert.Equal(t, "dial backend: connection refused", wrapped.Error())
	})

	t.Run("nil 错误直接返回 nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, "context"))
		assert.NoError(t, Wrapf(nil, "context %d", 1))
	})
}

func TestWrapf(t *testing.T) {
	base := New("timeout")
	wrapped := Wrapf(base, "call service %s", "ledger")

	require.Error(t, wrapped)
	assert.True(t, Is(wrapped, base))
	assert.Contains(t, wrapped.Error(), "call service ledger")
}

func TestCodedError(t *testing.T) {
	t.Run("附加并提取错误码", func(t *testing.T) {
		base := New("insufficient funds")
		coded := WithCode(base, "ERR_FUNDS")

		assert.Equal(t, "ERR_FUNDS", GetCode(coded))
		assert.True(t, Is(coded, base))
		assert.Equal(t, "[ERR_FUNDS] insufficient funds", coded.Error())
	})

	t.Run("多层包装后仍可提取错误码", func(t *testing.T) {
		base := New("boom")
		wrapped := Wrap(WithCode(base, "ERR_BOOM"), "outer")

		assert.Equal(t, "ERR_BOOM", GetCode(wrapped))
	})

	t.Run("无错误码时返回空字符串", func(t *testing.T) {
		assert.Equal(t, "", GetCode(New("plain")))
	})
}
