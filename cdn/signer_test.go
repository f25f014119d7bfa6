package cdn

import (
	"crypto/md5"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_sign_secret"

func freezeTime(t *testing.T, at time.Time) {
	t.Helper()
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = time.Now })
}

func TestSignKey(t *testing.T) {
	t.Run("deterministic digest", func(t *testing.T) {
		sign := SignKey("uploads/photo.jpg", 1700000000, testSecret)
		expected := fmt.Sprintf("%x", md5.Sum([]byte("uploads/photo.jpg-1700000000-"+testSecret)))
		assert.Equal(t, expected, sign)
		assert.Equal(t, sign, SignKey("uploads/photo.jpg", 1700000000, testSecret))
	})

	t.Run("different key different digest", func(t *testing.T) {
		assert.NotEqual(t,
			SignKey("a.jpg", 1700000000, testSecret),
			SignKey("b.jpg", 1700000000, testSecret))
	})
}

func TestVerifyKey(t *testing.T) {
	now := time.Unix(1700000000, 0)

	t.Run("valid immediately", func(t *testing.T) {
		freezeTime(t, now)
		sign := SignKey("uploads/photo.jpg", now.Unix(), testSecret)
		assert.True(t, VerifyKey("uploads/photo.jpg", now.Unix(), sign, testSecret))
	})

	t.Run("rejects wrong digest", func(t *testing.T) {
		freezeTime(t, now)
		assert.False(t, VerifyKey("uploads/photo.jpg", now.Unix(), "deadbeef", testSecret))
	})

	t.Run("rejects outside window", func(t *testing.T) {
		ts := now.Unix()
		sign := SignKey("uploads/photo.jpg", ts, testSecret)

		freezeTime(t, now.Add(signWindow*time.Second))
		assert.True(t, VerifyKey("uploads/photo.jpg", ts, sign, testSecret))

		freezeTime(t, now.Add((signWindow+1)*time.Second))
		assert.False(t, VerifyKey("uploads/photo.jpg", ts, sign, testSecret))
	})
}

func TestTimestampSignedURL(t *testing.T) {
	now := time.Unix(1700000000, 0)

	t.Run("matches provider algorithm", func(t *testing.T) {
		freezeTime(t, now)

		url := TimestampSignedURL("http://cdn.example.com/uploads/photo.jpg", "uploads/photo.jpg", testSecret, 3600)

		expire := now.Unix() + 3600
		hexExpire := fmt.Sprintf("%x", expire)
		expectedSign := fmt.Sprintf("%x", md5.Sum([]byte(testSecret+"/uploads/photo.jpg"+hexExpire)))
		assert.Equal(t,
			"http://cdn.example.com/uploads/photo.jpg?sign="+expectedSign+"&t="+hexExpire,
			url)
	})

	t.Run("expiry is lowercase hex", func(t *testing.T) {
		freezeTime(t, now)
		url := TimestampSignedURL("http://cdn.example.com/a.jpg", "a.jpg", testSecret, 3600)
		_, tail, ok := strings.Cut(url, "&t=")
		require.True(t, ok)
		assert.Equal(t, strings.ToLower(tail), tail)
		assert.NotContains(t, tail, "&")
	})

	t.Run("percent encodes path segments individually", func(t *testing.T) {
		freezeTime(t, now)

		url := TimestampSignedURL("http://cdn.example.com/up loads/süß.jpg", "up loads/süß.jpg", testSecret, 60)

		expire := fmt.Sprintf("%x", now.Unix()+60)
		encodedPath := "/up%20loads/s%C3%BC%C3%9F.jpg"
		expectedSign := fmt.Sprintf("%x", md5.Sum([]byte(testSecret+encodedPath+expire)))
		assert.Contains(t, url, "sign="+expectedSign)
	})

	t.Run("uses ampersand when query exists", func(t *testing.T) {
		freezeTime(t, now)
		url := TimestampSignedURL("http://cdn.example.com/a.jpg?v=2", "a.jpg", testSecret, 60)
		assert.Contains(t, url, "?v=2&sign=")
	})

	t.Run("byte identical at same instant, changes with expiry second", func(t *testing.T) {
		freezeTime(t, now)
		first := TimestampSignedURL("http://cdn.example.com/a.jpg", "a.jpg", testSecret, 3600)
		second := TimestampSignedURL("http://cdn.example.com/a.jpg", "a.jpg", testSecret, 3600)
		assert.Equal(t, first, second)

		freezeTime(t, now.Add(time.Second))
		third := TimestampSignedURL("http://cdn.example.com/a.jpg", "a.jpg", testSecret, 3600)
		assert.NotEqual(t, first, third)
	})
}

func TestPercentEncode(t *testing.T) {
	assert.Equal(t, "abc-_.~XYZ09", percentEncode("abc-_.~XYZ09"))
	assert.Equal(t, "a%20b", percentEncode("a b"))
	assert.Equal(t, "%2F", percentEncode("/"))
	assert.Equal(t, "%E4%B8%AD", percentEncode("中"))
}
