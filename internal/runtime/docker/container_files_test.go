package docker

import (
	"archive/tar"
	"context"
	"io"
	"strings"
	"testing"
)

func TestParseOwner(t *testing.T) {
	t.Parallel()

	cases := map[string]fileOwner{
		"":           {},
		"nobody":     {},
		"65534":      {uid: 65534, gid: 65534},
		"1000:2000":  {uid: 1000, gid: 2000},
		"1000:staff": {uid: 1000},
		"-1:-1":      {},
	}
	for user, want := range cases {
		if got := parseOwner(user); got != want {
			t.Fatalf("parseOwner(%q) = %+v, want %+v", user, got, want)
		}
	}
}

func TestArchiveFilesSetsOwnerAndMode(t *testing.T) {
	t.Parallel()

	reader, err := archiveFiles([]fileSpec{
		{Name: "main.py", Data: []byte("print(1)")},
		{Name: "program", Mode: 0o755, Data: []byte{0x7f}},
	}, fileOwner{uid: 65534, gid: 65534})
	if err != nil {
		t.Fatalf("archiveFiles returned error: %v", err)
	}

	tr := tar.NewReader(reader)
	var headers []*tar.Header
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read archive: %v", err)
		}
		headers = append(headers, header)
	}

	if len(headers) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(headers))
	}
	if headers[0].Mode != 0o644 || headers[0].Uid != 65534 || headers[0].Gid != 65534 {
		t.Fatalf("unexpected source header %+v", headers[0])
	}
	if headers[1].Mode != 0o755 {
		t.Fatalf("expected executable artifact, got mode %o", headers[1].Mode)
	}
}

func TestArchiveFilesRejectsEscapingNames(t *testing.T) {
	t.Parallel()

	if _, err := archiveFiles([]fileSpec{{Name: "../etc/passwd"}}, fileOwner{}); err == nil {
		t.Fatalf("expected error for path escaping the workdir")
	}
}

func TestExtractArtifactReportsMissingFile(t *testing.T) {
	t.Parallel()

	client := newFakeDockerClient()
	archive, err := archiveFiles(nil, fileOwner{})
	if err != nil {
		t.Fatalf("archiveFiles returned error: %v", err)
	}
	data, _ := io.ReadAll(archive)
	client.setCopyFrom("build", "/workspace/program", data)

	engine := newContainerEngine(client, Config{}.withDefaults())
	_, err = engine.extractArtifact(context.Background(), "build", "/workspace/program")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}
