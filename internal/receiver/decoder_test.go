package receiver

import (
	"bytes"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaysync/internal/model"
)

func formFile(t *testing.T, name, content string) (string, []byte) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return mw.FormDataContentType(), buf.Bytes()
}

func newTestDecoder(fs afero.Fs) *Decoder {
	return NewDecoder(fs, NewPathLocks(), []string{"relaysync", "config.yaml"})
}

func TestDecodeContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "single line", content: "hello"},
		{name: "trailing newline", content: "hello\n"},
		{name: "crlf lines", content: "a\r\nb\r\n\r\nc"},
		{name: "empty", content: ""},
		{name: "long line", content: strings.Repeat("x", 3*lineBufferSize+17)},
		{name: "crlf split at buffer end", content: strings.Repeat("x", lineBufferSize-1)},
		{name: "crlf split at second buffer end", content: strings.Repeat("x", 2*lineBufferSize-1)},
		{name: "carriage return at buffer end", content: strings.Repeat("x", lineBufferSize-1) + "\r" + strings.Repeat("y", 10)},
		{name: "long lines with breaks", content: strings.Repeat("y", lineBufferSize) + "\n" + strings.Repeat("z", lineBufferSize+1) + "\r\n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			ct, body := formFile(t, "b.txt", test.content)

			dst, outcome, err := newTestDecoder(fs).Decode(Upload{
				ContentType:   ct,
				ContentLength: int64(len(body)),
				Body:          bytes.NewReader(body),
				Dir:           "/srv/proj/a",
				FileName:      "b.txt",
			})
			require.NoError(t, err)
			assert.Equal(t, model.OK(), outcome)
			assert.Equal(t, "/srv/proj/a/b.txt", dst)

			data, err := afero.ReadFile(fs, dst)
			require.NoError(t, err)
			assert.Equal(t, test.content, string(data))
		})
	}
}

func TestDecodeNameFromDisposition(t *testing.T) {
	fs := afero.NewMemMapFs()
	ct, body := formFile(t, "report.pdf", "%PDF")

	dst, outcome, err := newTestDecoder(fs).Decode(Upload{
		ContentType:   ct,
		ContentLength: -1,
		Body:          bytes.NewReader(body),
		Dir:           "/srv/up",
	})
	require.NoError(t, err)
	assert.True(t, outcome.OK())
	assert.Equal(t, "/srv/up/report.pdf", dst)
}

func TestDecodeRejects(t *testing.T) {
	ct, body := formFile(t, "b.txt", "hi")

	tests := []struct {
		name        string
		contentType string
		body        []byte
		fileName    string
		exp         model.SyncOutcome
	}{
		{
			name:        "no content type",
			contentType: "",
			body:        body,
			fileName:    "b.txt",
			exp:         model.Fail(model.MsgNoBoundary),
		},
		{
			name:        "no boundary parameter",
			contentType: "multipart/form-data",
			body:        body,
			fileName:    "b.txt",
			exp:         model.Fail(model.MsgNoBoundary),
		},
		{
			name:        "body without boundary",
			contentType: ct,
			body:        []byte("garbage\r\n"),
			fileName:    "b.txt",
			exp:         model.Fail(model.MsgNotBoundaryStart),
		},
		{
			name:        "traversal",
			contentType: ct,
			body:        body,
			fileName:    "../../etc/passwd",
			exp:         model.NoPermission(),
		},
		{
			name:        "reserved name",
			contentType: ct,
			body:        body,
			fileName:    "relaysync",
			exp:         model.NoPermission(),
		},
		{
			name:        "no file name anywhere",
			contentType: "multipart/form-data; boundary=xyz",
			body:        []byte("--xyz\r\nContent-Disposition: form-data; name=\"other\"\r\n\r\nv\r\n--xyz--\r\n"),
			exp:         model.Fail(model.MsgNoFileName),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()

			dst, outcome, err := newTestDecoder(fs).Decode(Upload{
				ContentType:   test.contentType,
				ContentLength: int64(len(test.body)),
				Body:          bytes.NewReader(test.body),
				Dir:           "/srv/a",
				FileName:      test.fileName,
			})
			require.NoError(t, err)
			assert.Equal(t, test.exp, outcome)
			assert.Empty(t, dst)

			exists, err := afero.Exists(fs, "/etc/passwd")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestDecodeStopsAtDeclaredLength(t *testing.T) {
	fs := afero.NewMemMapFs()
	ct, body := formFile(t, "b.txt", "abc")
	cut := bytes.Index(body, []byte("\r\n--"+strings.TrimPrefix(ct, "multipart/form-data; boundary=")+"--"))
	require.Positive(t, cut)

	dst, outcome, err := newTestDecoder(fs).Decode(Upload{
		ContentType:   ct,
		ContentLength: int64(cut),
		Body:          bytes.NewReader(body),
		Dir:           "/srv",
		FileName:      "b.txt",
	})
	require.NoError(t, err)
	assert.True(t, outcome.OK())

	data, err := afero.ReadFile(fs, dst)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestDecodeWebUploadWithoutContentType(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := "--b0\r\n" +
		"Content-Disposition: form-data; name=\"file\"; filename=\"note.txt\"\r\n" +
		"\r\n" +
		"note\r\n" +
		"--b0--\r\n"

	dst, outcome, err := newTestDecoder(fs).Decode(Upload{
		ContentType:   `multipart/form-data; boundary="b0"`,
		ContentLength: int64(len(body)),
		Body:          strings.NewReader(body),
		Dir:           "/srv",
	})
	require.NoError(t, err)
	assert.True(t, outcome.OK())

	data, err := afero.ReadFile(fs, dst)
	require.NoError(t, err)
	assert.Equal(t, "note", string(data))
}

func TestBoundaryOf(t *testing.T) {
	assert.Equal(t, "abc", boundaryOf("multipart/form-data; boundary=abc"))
	assert.Equal(t, "abc", boundaryOf(`multipart/form-data; boundary="abc"; charset=utf-8`))
	assert.Empty(t, boundaryOf("application/json"))
}
