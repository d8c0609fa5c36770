package cli_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/blobstore/internal/cli"
	"github.com/calvinalkan/blobstore/pkg/blobstore"
)

func Test_Put_Then_Get_Returns_Payload_From_Stdin(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout, stderr, code := c.RunWithInput("hello", "put", "greeting", "-t", "v1")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "stored greeting (5 bytes)\n", stdout)

	got, stderr, code := c.Run("get", "greeting", "-t", "v1")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "hello", got)

	assert.Equal(t, "hello", c.ReadCacheFile(blobstore.BlobFile))
	assert.Equal(t, `{"greeting":["v1",0,5]}`, c.ReadCacheFile(blobstore.MapFile))
	assert.NoFileExists(t, filepath.Join(c.CacheDir(), blobstore.LockFile))
}

func Test_Put_Reads_Payload_From_File_Relative_To_Cwd(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile("in/payload.bin", "from file")

	c.MustRun("put", "k", "in/payload.bin", "-t", "t1")

	assert.Equal(t, "from file", c.MustRun("get", "k", "-t", "t1"))
}

func Test_Get_Fails_When_Token_Differs_Or_Key_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	_, _, code := c.RunWithInput("x", "put", "k", "-t", "v1")
	require.Equal(t, 0, code)

	for _, args := range [][]string{
		{"get", "k", "-t", "v2"},
		{"get", "missing", "-t", "v1"},
	} {
		stderr := c.MustFail(args...)
		assert.Equal(t, "error: not found", stderr)
	}
}

func Test_Has_Prints_True_Or_False(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	_, _, code := c.RunWithInput("x", "put", "k", "-t", "v1")
	require.Equal(t, 0, code)

	assert.Equal(t, "true", c.MustRun("has", "k", "-t", "v1"))
	assert.Equal(t, "false", c.MustRun("has", "k", "-t", "v2"))
	assert.Equal(t, "false", c.MustRun("has", "other", "-t", "v1"))
}

func Test_Source_Flag_Uses_File_Fingerprint_As_Token(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	src := c.WriteFile("main.c", "int main(void) { return 0; }")

	_, stderr, code := c.RunWithInput("compiled", "put", "main.o", "-s", "main.c")
	require.Equal(t, 0, code, "stderr: %s", stderr)

	data, err := os.ReadFile(src)
	require.NoError(t, err)

	token := blobstore.Fingerprint(data)
	assert.Equal(t, "compiled", c.MustRun("get", "main.o", "-t", token))
	assert.Equal(t, "true", c.MustRun("has", "main.o", "-s", "main.c"))

	fp := c.MustRun("fingerprint", "main.c")
	assert.Equal(t, token+"  main.c", fp)

	// Changing the source invalidates the entry.
	c.WriteFile("main.c", "int main(void) { return 1; }")
	assert.Equal(t, "false", c.MustRun("has", "main.o", "-s", "main.c"))
}

func Test_Token_Flags_Are_Validated(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile("src", "x")

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{name: "Missing", args: []string{"get", "k"}, want: "token required"},
		{name: "Both", args: []string{"get", "k", "-t", "a", "-s", "src"}, want: "cannot be combined"},
		{name: "MissingSource", args: []string{"has", "k", "-s", "nope"}, want: "reading source"},
		{name: "NoKey", args: []string{"get", "-t", "a"}, want: "key required"},
		{name: "ExtraArgs", args: []string{"get", "k", "extra", "-t", "a"}, want: "too many arguments"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			stdout, stderr, code := c.Run(tc.args...)
			assert.Equal(t, 1, code)
			assert.Empty(t, stdout)
			cli.AssertContains(t, stderr, tc.want)
		})
	}
}

func Test_Put_Rejects_Key_Or_Token_That_Is_Not_UTF8(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	for _, args := range [][]string{
		{"put", "k\xff", "-t", "v1"},
		{"put", "k", "-t", "v\xfe"},
	} {
		stdout, stderr, code := c.RunWithInput("x", args...)
		assert.Equal(t, 1, code)
		assert.Empty(t, stdout)
		cli.AssertContains(t, stderr, "must be valid UTF-8")
	}

	assert.NoFileExists(t, filepath.Join(c.CacheDir(), blobstore.MapFile))
}

func Test_Empty_Token_Is_A_Valid_Token(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	_, _, code := c.RunWithInput("x", "put", "k", "-t", "")
	require.Equal(t, 0, code)

	assert.Equal(t, "true", c.MustRun("has", "k", "-t", ""))
	assert.Equal(t, "false", c.MustRun("has", "k", "-t", "v1"))
}

func Test_Put_Fails_Without_Payload_Source(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("put", "k", "-t", "v1")

	cli.AssertContains(t, stderr, "no payload")
}

func Test_Put_Warns_And_Exits_1_When_Cache_Locked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".blobcache/LOCK", "LOCK")

	stdout, stderr, code := c.RunWithInput("x", "put", "k", "-t", "v1")

	assert.Equal(t, 1, code)
	assert.Equal(t, "stored k (1 bytes)\n", stdout)
	cli.AssertContains(t, stderr, "warning: k was not saved (cache locked by another writer)")
	cli.AssertContains(t, stderr, filepath.Join(c.CacheDir(), "LOCK"))

	assert.NoFileExists(t, filepath.Join(c.CacheDir(), blobstore.BlobFile))
	assert.FileExists(t, filepath.Join(c.CacheDir(), blobstore.LockFile))
}

func Test_Rm_Deletes_Keys_And_Saves(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	for _, key := range []string{"a", "b", "c"} {
		_, _, code := c.RunWithInput(key+"-payload", "put", key, "-t", "t")
		require.Equal(t, 0, code)
	}

	assert.Equal(t, "removed 2 of 3", c.MustRun("rm", "a", "c", "zzz"))
	assert.Equal(t, "b\tt\t9", c.MustRun("ls"))
	assert.Equal(t, "b-payload", c.ReadCacheFile(blobstore.BlobFile))

	stderr := c.MustFail("rm")
	cli.AssertContains(t, stderr, "key required")
}

func Test_Dir_Flag_Selects_Cache_Directory(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	other := filepath.Join(c.Dir, "elsewhere")

	_, _, code := c.RunWithInput("x", "--dir", other, "put", "k", "-t", "v1")
	require.Equal(t, 0, code)

	assert.FileExists(t, filepath.Join(other, blobstore.MapFile))
	assert.NoDirExists(t, c.CacheDir())
	assert.Equal(t, "false", c.MustRun("has", "k", "-t", "v1"))
	assert.Equal(t, "true", c.MustRun("-d", other, "has", "k", "-t", "v1"))
}

func Test_Ls_Lists_Entries_In_Snapshot_Order(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	for _, kv := range [][2]string{{"z", "zz"}, {"a", "aaa"}, {"m", ""}} {
		_, _, code := c.RunWithInput(kv[1], "put", kv[0], "-t", "tok")
		require.Equal(t, 0, code)
	}

	// Each put opens a fresh store, so earlier keys come from the persisted
	// tier and follow the just-set memory key on every save.
	got := strings.Split(c.MustRun("ls"), "\n")
	want := []string{"m\ttok\t0", "a\ttok\t3", "z\ttok\t2"}
	assert.Equal(t, want, got)

	long := c.MustRun("ls", "-l")
	cli.AssertContains(t, long, "a\ttok\t3\tpersisted")

	assert.Empty(t, cli.NewCLI(t).MustRun("ls"))
}
