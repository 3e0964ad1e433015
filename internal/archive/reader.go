package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/bodgit/sevenzip"
	"github.com/ulikunitz/xz"
)

// ErrMemberTooLarge signals a member exceeded the configured size bound.
var ErrMemberTooLarge = errors.New("archive member exceeds max file size")

// entry is one member of an opened archive, lazily readable.
type entry struct {
	Name  string
	IsDir bool
	Size  int64
	open  func() (io.ReadCloser, error)
}

func (e entry) readAll(maxSize int64) ([]byte, error) {
	if maxSize > 0 && e.Size > maxSize {
		return nil, ErrMemberTooLarge
	}
	r, err := e.open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	limited := io.LimitReader(r, maxSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, ErrMemberTooLarge
	}
	return data, nil
}

// openEntries dispatches to the per-format reader and returns every
// member of the archive described by data. Single-stream formats
// (gz/bz2/xz) are modeled as a one-entry archive whose member name is
// the outer name with its compression suffix stripped.
func openEntries(name string, data []byte, format Format) ([]entry, error) {
	switch format {
	case FormatZip:
		return openZip(data)
	case FormatTar:
		return openTar(bytes.NewReader(data))
	case FormatTarGz:
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return openTar(gz)
	case FormatTarBz2:
		return openTar(bzip2.NewReader(bytes.NewReader(data)))
	case FormatTarXz:
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return openTar(xr)
	case FormatGz:
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return []entry{singleStreamEntry(stripArchiveSuffix(name, format), gz)}, nil
	case FormatBz2:
		return []entry{singleStreamEntry(stripArchiveSuffix(name, format), bzip2.NewReader(bytes.NewReader(data)))}, nil
	case FormatXz:
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return []entry{singleStreamEntry(stripArchiveSuffix(name, format), xr)}, nil
	case Format7z:
		return open7z(data)
	default:
		return nil, fmt.Errorf("unsupported archive format for %s", name)
	}
}

func singleStreamEntry(name string, r io.Reader) entry {
	return entry{
		Name: name,
		Size: -1, // unknown ahead of decompression; size bound enforced by LimitReader
		open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
	}
}

func openZip(data []byte) ([]entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	out := make([]entry, 0, len(zr.File))
	for _, f := range zr.File {
		f := f
		out = append(out, entry{
			Name:  f.Name,
			IsDir: f.FileInfo().IsDir(),
			Size:  int64(f.UncompressedSize),
			open:  func() (io.ReadCloser, error) { return f.Open() },
		})
	}
	return out, nil
}

// open7z reads the whole archive eagerly since sevenzip.NewReader
// needs an io.ReaderAt and bounded member bytes are held in memory
// regardless, matching how the rest of this package treats members.
func open7z(data []byte) ([]entry, error) {
	zr, err := sevenzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	out := make([]entry, 0, len(zr.File))
	for _, f := range zr.File {
		f := f
		out = append(out, entry{
			Name:  f.Name,
			IsDir: f.FileInfo().IsDir(),
			Size:  int64(f.UncompressedSize),
			open:  func() (io.ReadCloser, error) { return f.Open() },
		})
	}
	return out, nil
}

// openTar drains the reader into entries. tar streams are sequential,
// so each entry captures its own bytes up front rather than lazily
// re-reading the shared reader out of order.
func openTar(r io.Reader) ([]entry, error) {
	tr := tar.NewReader(r)
	var out []entry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag == tar.TypeDir {
			out = append(out, entry{Name: hdr.Name, IsDir: true})
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		body := make([]byte, hdr.Size)
		if _, err := io.ReadFull(tr, body); err != nil {
			return nil, err
		}
		out = append(out, entry{
			Name: hdr.Name,
			Size: hdr.Size,
			open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil },
		})
	}
	return out, nil
}
