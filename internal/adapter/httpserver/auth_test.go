package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastParams keeps test hashing cheap.
var fastParams = Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 8, KeyLen: 16}

func Test_HashPassword_VerifyPassword(t *testing.T) {
	t.Parallel()
	hash, err := HashPassword("s3cret", fastParams)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "argon2id$1$1024$1$"))
	assert.True(t, VerifyPassword("s3cret", hash))
	assert.False(t, VerifyPassword("wrong", hash))

	other, err := HashPassword("s3cret", fastParams)
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salted")
}

func Test_VerifyPassword_Malformed(t *testing.T) {
	t.Parallel()
	for _, h := range []string{
		"",
		"bcrypt$2$x",
		"argon2id$x$1024$1$c2FsdA$aGFzaA",
		"argon2id$1$1024$0$c2FsdA$aGFzaA",
		"argon2id$1$1024$300$c2FsdA$aGFzaA",
		"argon2id$1$1024$1$!!$aGFzaA",
		"argon2id$1$1024$1$c2FsdA$",
	} {
		assert.False(t, VerifyPassword("pw", h), h)
	}
}

func Test_AdminBasicAuth(t *testing.T) {
	t.Parallel()
	hash, err := HashPassword("hunter2", fastParams)
	require.NoError(t, err)
	h := AdminBasicAuth("admin", hash)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	cases := []struct {
		name       string
		user, pass string
		setAuth    bool
		want       int
	}{
		{"ok", "admin", "hunter2", true, http.StatusTeapot},
		{"wrong password", "admin", "nope", true, http.StatusUnauthorized},
		{"wrong user", "root", "hunter2", true, http.StatusUnauthorized},
		{"missing", "", "", false, http.StatusUnauthorized},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil)
			if c.setAuth {
				r.SetBasicAuth(c.user, c.pass)
			}
			rw := httptest.NewRecorder()
			h.ServeHTTP(rw, r)
			assert.Equal(t, c.want, rw.Code)
			if c.want == http.StatusUnauthorized {
				assert.Contains(t, rw.Header().Get("WWW-Authenticate"), "Basic")
				assert.Equal(t, "UNAUTHORIZED", decodeErr(t, rw).Error.Code)
			}
		})
	}
}
