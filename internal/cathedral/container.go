package cathedral

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/templedb/templedb/internal/storage"
)

// Compression selects the package container.
type Compression string

// Container kinds.
const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// archiveSuffix returns the filename suffix for a compressed container.
func archiveSuffix(c Compression) string {
	switch c {
	case CompressionZstd:
		return ".tar.zst"
	case CompressionGzip:
		return ".tar.gz"
	}
	return ""
}

// pack writes srcDir into a tar archive at dest, compressed per c. The
// archive entries keep the package directory name as their prefix so
// the `<slug>.cathedral` name survives the round-trip.
func pack(srcDir, dest string, c Compression) (err error) {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", dest, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var w io.WriteCloser
	switch c {
	case CompressionZstd:
		zw, zerr := zstd.NewWriter(f)
		if zerr != nil {
			return fmt.Errorf("zstd writer: %w", zerr)
		}
		w = zw
	case CompressionGzip:
		w = gzip.NewWriter(f)
	default:
		return fmt.Errorf("unsupported compression %q: %w", c, storage.ErrInvalidInput)
	}

	tw := tar.NewWriter(w)
	base := filepath.Base(srcDir)
	err = filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		rel, rerr := filepath.Rel(srcDir, p)
		if rerr != nil {
			return rerr
		}
		if rel == "." {
			return nil
		}
		name := path.Join(base, filepath.ToSlash(rel))
		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}
		if d.IsDir() {
			return tw.WriteHeader(&tar.Header{
				Name:     name + "/",
				Mode:     0o755,
				ModTime:  info.ModTime(),
				Typeflag: tar.TypeDir,
			})
		}
		if herr := tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Typeflag: tar.TypeReg,
		}); herr != nil {
			return herr
		}
		return appendFile(tw, p)
	})
	if err != nil {
		return fmt.Errorf("pack %s: %w", srcDir, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish compression: %w", err)
	}
	return nil
}

// unpack extracts a package archive into destDir, detecting the
// compression from the filename suffix.
func unpack(archive, destDir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archive, err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader
	switch {
	case strings.HasSuffix(archive, ".tar.zst"), strings.HasSuffix(archive, ".tzst"):
		zr, zerr := zstd.NewReader(f)
		if zerr != nil {
			return fmt.Errorf("zstd reader: %w", zerr)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(archive, ".tar.gz"), strings.HasSuffix(archive, ".tgz"):
		gr, gerr := gzip.NewReader(f)
		if gerr != nil {
			return fmt.Errorf("gzip reader: %w", gerr)
		}
		defer func() { _ = gr.Close() }()
		r = gr
	default:
		return fmt.Errorf("unrecognized package container %s: %w", archive, storage.ErrInvalidInput)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		name := path.Clean(hdr.Name)
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return fmt.Errorf("archive entry escapes package root: %q: %w", hdr.Name, storage.ErrInvalidInput)
		}
		target := filepath.Join(destDir, filepath.FromSlash(name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("extract %s: %w", name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("extract %s: %w", name, err)
			}
			if err := extractFile(tr, target); err != nil {
				return fmt.Errorf("extract %s: %w", name, err)
			}
		}
	}
}

func extractFile(r io.Reader, target string) error {
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
