package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Dir writes every regular file directly inside sourceDir into a new
// deflate-compressed zip at archivePath, in name order and without any
// directory prefix. Symlinks are followed; links to directories and broken
// links are skipped. An existing archive is replaced.
func Dir(sourceDir, archivePath string) (err error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return fmt.Errorf("read %s: %w", sourceDir, err)
	}

	zipFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer func() {
		if cerr := zipFile.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close zip file: %w", cerr)
		}
	}()

	zipWriter := zip.NewWriter(zipFile)
	for _, entry := range entries {
		src := filepath.Join(sourceDir, entry.Name())
		info, statErr := os.Stat(src)
		if statErr != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := writeEntry(zipWriter, entry.Name(), src, info); err != nil {
			zipWriter.Close()
			return fmt.Errorf("add %s to zip: %w", entry.Name(), err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return nil
}

// writeEntry stores src under name, keeping the target's mode and mtime.
func writeEntry(zw *zip.Writer, name, src string, info os.FileInfo) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: info.ModTime(),
	}
	header.SetMode(info.Mode().Perm())

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, file)
	return err
}

// Entries lists the entry names of the zip at archivePath in archive order.
func Entries(archivePath string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}
