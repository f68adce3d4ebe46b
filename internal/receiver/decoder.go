package receiver

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"relaysync/internal/logger"
	"relaysync/internal/model"
	"relaysync/internal/util"
)

const lineBufferSize = 64 << 10

var fileNameRe = regexp.MustCompile(`Content-Disposition.*name="file"; filename="([^/]*)"`)

// Upload is one multipart body addressed to a target directory. A negative
// ContentLength means the length is unknown and the body is read to EOF.
type Upload struct {
	ContentType   string
	ContentLength int64
	Body          io.Reader
	Dir           string
	FileName      string
	Mode          os.FileMode
	HasMode       bool
}

// Decoder extracts the first file part of a multipart body by scanning for the
// boundary line by line, so the content is never held in memory.
type Decoder struct {
	fs       afero.Fs
	locks    *PathLocks
	reserved map[string]struct{}
}

func NewDecoder(fs afero.Fs, locks *PathLocks, reserved []string) *Decoder {
	names := make(map[string]struct{}, len(reserved))
	for _, name := range reserved {
		names[name] = struct{}{}
	}

	return &Decoder{
		fs:       fs,
		locks:    locks,
		reserved: names,
	}
}

// Decode writes the uploaded file and returns its path. Rejections are
// reported in the outcome; the error is set only for I/O failures.
func (d *Decoder) Decode(up Upload) (string, model.SyncOutcome, error) {
	boundary := boundaryOf(up.ContentType)
	if boundary == "" {
		logger.Log.Warn(model.MsgNoBoundary, zap.String("content_type", up.ContentType))
		return "", model.Fail(model.MsgNoBoundary), nil
	}
	marker := []byte(boundary)

	body := up.Body
	if up.ContentLength >= 0 {
		body = io.LimitReader(body, up.ContentLength)
	}
	lr := newLineReader(body)

	first, _, err := lr.next()
	if err != nil || !bytes.Contains(first, marker) {
		logger.Log.Warn(model.MsgNotBoundaryStart, zap.String("dir", up.Dir))
		return "", model.Fail(model.MsgNotBoundaryStart), nil
	}

	if err := d.fs.MkdirAll(up.Dir, 0755); err != nil {
		logger.Log.Error("failed to create target dir",
			zap.String("dir", up.Dir),
			zap.Error(err))
		return "", model.NoPermission(), nil
	}

	disposition, _, err := lr.next()
	if errors.Is(err, io.EOF) {
		logger.Log.Warn("upload carries no part", zap.String("dir", up.Dir))
		return "", model.OK(), nil
	}
	if err != nil {
		return "", model.SyncOutcome{}, err
	}

	name := up.FileName
	if name == "" {
		m := fileNameRe.FindSubmatch(disposition)
		if m == nil || len(m[1]) == 0 {
			logger.Log.Error(model.MsgNoFileName, zap.String("dir", up.Dir))
			return "", model.Fail(model.MsgNoFileName), nil
		}
		name = string(m[1])
	}

	dst, ok := d.destination(up.Dir, name)
	if !ok {
		logger.Log.Error("upload rejected",
			zap.String("dir", up.Dir),
			zap.String("file_name", name))
		return "", model.NoPermission(), nil
	}

	line, _, err := lr.next()
	if err == nil && bytes.Contains(line, []byte("Content-Type")) {
		_, _, err = lr.next()
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", model.SyncOutcome{}, err
	}

	unlock := d.locks.Lock(dst)
	defer unlock()

	perm := util.KeepMode
	if up.HasMode {
		perm = up.Mode.Perm()
	}

	err = util.AtomicWrite(d.fs, dst, perm, func(w io.Writer) error {
		return copyPart(lr, marker, w, dst)
	})
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			logger.Log.Error("failed to write upload",
				zap.String("path", dst),
				zap.Error(err))
			return "", model.NoPermission(), nil
		}
		return "", model.SyncOutcome{}, err
	}

	return dst, model.OK(), nil
}

// destination joins name onto dir and rejects results that leave dir or
// collide with a reserved name.
func (d *Decoder) destination(dir, name string) (string, bool) {
	dst := filepath.Join(dir, name)

	rel, err := filepath.Rel(dir, dst)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	if _, reserved := d.reserved[filepath.Base(dst)]; reserved {
		return "", false
	}

	return dst, true
}

// copyPart streams content lines to w with one line of lookahead, so the line
// break preceding the closing boundary can be dropped.
func copyPart(lr *lineReader, marker []byte, w io.Writer, dst string) error {
	prev, _, err := lr.next()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}

	for {
		line, lineStart, err := lr.next()
		if errors.Is(err, io.EOF) {
			logger.Log.Warn("upload ended before closing boundary",
				zap.String("path", dst))
			_, err = w.Write(prev)
			return err
		}
		if err != nil {
			return err
		}

		if lineStart && bytes.Contains(line, marker) {
			prev = bytes.TrimSuffix(prev, []byte("\n"))
			prev = bytes.TrimSuffix(prev, []byte("\r"))
			_, err = w.Write(prev)
			return err
		}

		// A \r ending a chunk may pair with a \n starting the next one.
		if !lineStart && bytes.HasSuffix(prev, []byte("\r")) {
			prev = prev[:len(prev)-1]
			line = append([]byte("\r"), line...)
		}

		if _, err := w.Write(prev); err != nil {
			return err
		}
		prev = line
	}
}

func boundaryOf(contentType string) string {
	i := strings.Index(contentType, "boundary=")
	if i < 0 {
		return ""
	}

	b := contentType[i+len("boundary="):]
	if j := strings.IndexByte(b, ';'); j >= 0 {
		b = b[:j]
	}

	return strings.Trim(strings.TrimSpace(b), `"`)
}

// lineReader yields lines of the body; lines longer than the buffer come back
// in chunks, and lineStart reports whether a chunk begins a line.
type lineReader struct {
	r         *bufio.Reader
	lineStart bool
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{
		r:         bufio.NewReaderSize(r, lineBufferSize),
		lineStart: true,
	}
}

func (lr *lineReader) next() ([]byte, bool, error) {
	start := lr.lineStart

	chunk, err := lr.r.ReadSlice('\n')
	lr.lineStart = !errors.Is(err, bufio.ErrBufferFull)
	if len(chunk) == 0 && err != nil {
		return nil, start, err
	}

	return bytes.Clone(chunk), start, nil
}
