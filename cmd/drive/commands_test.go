package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/drive/internal/browser"
)

type cli struct {
	t   *testing.T
	dir string
	db  string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DRIVE_LOG_PATH", filepath.Join(dir, "drive.log"))
	return &cli{t: t, dir: dir, db: filepath.Join(dir, "drive.db")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", filepath.Join(c.dir, "config.json"), "--local", c.db}, args...)
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	assert.NilError(c.t, err, "drive %s", strings.Join(args, " "))
	return out
}

// lastField returns the id printed at the end of a command's output.
func lastField(out string) string {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func TestCLI_FolderAndFileLifecycle(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("mkdir", "Docs")
	assert.Assert(t, strings.HasPrefix(out, "created Docs/"))
	docsID := lastField(out)

	src := filepath.Join(c.dir, "cat.png")
	assert.NilError(t, os.WriteFile(src, []byte("meow"), 0644))
	out = c.mustRun("put", src, "--parent", docsID)
	assert.Assert(t, is.Contains(out, "uploaded cat.png (4 B)"))
	fileID := lastField(out)

	out = c.mustRun("ls")
	assert.Assert(t, is.Contains(out, "Docs/"))
	assert.Assert(t, is.Contains(out, docsID))

	out = c.mustRun("ls", docsID)
	assert.Assert(t, is.Contains(out, "cat.png"))
	assert.Assert(t, is.Contains(out, "4 B"))

	out = c.mustRun("mv", fileID, "kitten.png")
	assert.Equal(t, out, "renamed "+fileID+" to kitten.png\n")

	dest := filepath.Join(c.dir, "copy.png")
	out = c.mustRun("get", fileID, "-o", dest)
	assert.Assert(t, is.Contains(out, "saved "+dest))
	data, err := os.ReadFile(dest)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "meow")

	out = c.mustRun("get", fileID, "-o", "-")
	assert.Equal(t, out, "meow")

	out = c.mustRun("rm", docsID)
	assert.Equal(t, out, "deleted "+docsID+"\n")
	out = c.mustRun("ls")
	assert.Equal(t, out, "(empty)\n")

	_, err = c.run("get", fileID)
	assert.ErrorContains(t, err, "not found")
}

func TestCLI_FindWithSingleResultDownloads(t *testing.T) {
	c := newCLI(t)

	src := filepath.Join(c.dir, "holiday.txt")
	assert.NilError(t, os.WriteFile(src, []byte("sunny"), 0644))
	c.mustRun("put", src)
	c.mustRun("mkdir", "Work")

	dest := filepath.Join(c.dir, "found.txt")
	out := c.mustRun("find", "holi", "-o", dest)
	assert.Assert(t, is.Contains(out, "saved "+dest))
	data, err := os.ReadFile(dest)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "sunny")

	out = c.mustRun("find", "Work")
	assert.Assert(t, strings.HasPrefix(out, "Work/  "))

	out = c.mustRun("find", "zzz")
	assert.Equal(t, out, "No items found for 'zzz'\n")
}

func TestCLI_ShareAndMe(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("me")
	assert.Equal(t, out, "local\n")

	teamID := lastField(c.mustRun("mkdir", "Team"))
	out = c.mustRun("share", teamID, "bob", "--role", "editor")
	assert.Equal(t, out, "shared "+teamID+" with bob as editor\n")

	_, err := c.run("share", teamID, "bob", "--role", "owner")
	assert.ErrorContains(t, err, "unknown share role")

	t.Setenv("DRIVE_LOCAL_USER", "bob")
	assert.Equal(t, c.mustRun("me"), "bob\n")
	out = c.mustRun("ls", "--shared")
	assert.Assert(t, is.Contains(out, "Team/"))
	assert.Equal(t, c.mustRun("ls"), "(empty)\n")
}

func TestCLI_RejectsBlankNames(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("mkdir", "   ")
	assert.Assert(t, errors.Is(err, browser.ErrEmptyName))

	id := lastField(c.mustRun("mkdir", "A"))
	_, err = c.run("mv", id, "")
	assert.Assert(t, errors.Is(err, browser.ErrEmptyName))
}

func TestCLI_MoveAndRename(t *testing.T) {
	c := newCLI(t)

	aID := lastField(c.mustRun("mkdir", "A"))
	bID := lastField(c.mustRun("mkdir", "B", "--parent", aID))
	archiveID := lastField(c.mustRun("mkdir", "Archive"))

	out := c.mustRun("mv", bID, "Old", "--to", archiveID)
	assert.Equal(t, out, "renamed "+bID+" to Old\nmoved "+bID+" into "+archiveID+"\n")
	assert.Assert(t, is.Contains(c.mustRun("ls", archiveID), "Old/"))
	assert.Equal(t, c.mustRun("ls", aID), "(empty)\n")

	_, err := c.run("mv", archiveID, "--to", bID)
	assert.ErrorContains(t, err, "own subtree")

	_, err = c.run("mv", aID)
	assert.ErrorContains(t, err, "--to")
}

func TestCLI_PutDirectoryFails(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("put", c.dir)
	assert.ErrorContains(t, err, "is a directory")
}
