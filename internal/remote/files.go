package remote

import (
	"io"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/pkg/sftp"
)

// transferChunkSize is the streaming unit for uploads and downloads.
const transferChunkSize = 32 * 1024

// FileEntry is an immutable snapshot of one remote directory entry. It is not
// kept in sync with the remote filesystem; request a fresh listing after any
// mutation.
type FileEntry struct {
	Name     string
	Path     string
	IsDir    bool
	Size     int64
	Modified time.Time // zero when unknown
	Mode     string    // empty when unknown
}

// remoteFS is the slice of the SFTP protocol the engine needs. Narrowed to an
// interface so tests can drive the engine without a server.
type remoteFS interface {
	ReadDir(path string) ([]os.FileInfo, error)
	Stat(path string) (os.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	Create(path string) (io.WriteCloser, error)
	Remove(path string) error
	RemoveDirectory(path string) error
	Mkdir(path string) error
	Rename(oldPath, newPath string) error
	Close() error
}

// sftpFS adapts *sftp.Client to remoteFS.
type sftpFS struct{ c *sftp.Client }

func (f sftpFS) ReadDir(p string) ([]os.FileInfo, error) { return f.c.ReadDir(p) }
func (f sftpFS) Stat(p string) (os.FileInfo, error)      { return f.c.Stat(p) }
func (f sftpFS) Open(p string) (io.ReadCloser, error)    { return f.c.Open(p) }
func (f sftpFS) Create(p string) (io.WriteCloser, error) { return f.c.Create(p) }
func (f sftpFS) Remove(p string) error                   { return f.c.Remove(p) }
func (f sftpFS) RemoveDirectory(p string) error          { return f.c.RemoveDirectory(p) }
func (f sftpFS) Mkdir(p string) error                    { return f.c.Mkdir(p) }
func (f sftpFS) Rename(o, n string) error                { return f.c.Rename(o, n) }
func (f sftpFS) Close() error                            { return f.c.Close() }

// FileChannel is the negotiated file-transfer channel of a session. It is
// opened once per interactive session and reused for every listing and
// transfer call.
type FileChannel struct {
	fs   remoteFS
	sess *Session
}

// wrapRemote builds the error for a failed remote call, surfacing a
// TransportError instead when the owning session has been invalidated (the
// in-flight operation died with the transport, not on its own).
func (fc *FileChannel) wrapRemote(op, p string, err error) error {
	if fc.sess != nil && fc.sess.Invalidated() {
		return &TransportError{Addr: fc.sess.params.Addr(), Err: err}
	}
	return &RemoteOperationError{Op: op, Path: p, Err: err}
}

// Close releases the underlying SFTP channel.
func (fc *FileChannel) Close() error { return fc.fs.Close() }

// ListDirectory reads dirPath and returns its entries with metadata,
// directories first, each group sorted by name. A ".." parent entry is
// synthesized unless dirPath is the root.
//
// Metadata is fetched with one concurrent stat per entry; over
// high-round-trip links this fan-out is the dominant latency win. Each result
// is attributed back to its entry by index, never by completion order. An
// entry whose stat fails independently degrades to a fallback (regular file,
// size 0, unknown mtime) without hiding the rest of the directory.
func (fc *FileChannel) ListDirectory(dirPath string) ([]FileEntry, error) {
	infos, err := fc.fs.ReadDir(dirPath)
	if err != nil {
		return nil, fc.wrapRemote("readdir", dirPath, err)
	}

	entries := make([]FileEntry, 0, len(infos)+1)
	if dirPath != "/" {
		entries = append(entries, FileEntry{Name: "..", Path: "..", IsDir: true})
	}

	names := make([]string, 0, len(infos))
	paths := make([]string, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		names = append(names, name)
		paths = append(paths, path.Join(dirPath, name))
	}

	// Fan-out: one stat per entry, results slotted by index.
	stats := make([]os.FileInfo, len(paths))
	var wg sync.WaitGroup
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if fi, err := fc.fs.Stat(paths[i]); err == nil {
				stats[i] = fi
			}
		}(i)
	}
	wg.Wait()

	for i, name := range names {
		entry := FileEntry{Name: name, Path: paths[i]}
		if fi := stats[i]; fi != nil {
			entry.IsDir = fi.IsDir()
			entry.Size = fi.Size()
			entry.Modified = fi.ModTime()
			entry.Mode = fi.Mode().String()
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})
	return entries, nil
}

// Download streams the remote file to localPath in 32 KiB chunks, creating or
// truncating the local file first. A failure mid-stream leaves the partial
// local file in place; nothing is cleaned up or resumed.
func (fc *FileChannel) Download(remotePath, localPath string) error {
	src, err := fc.fs.Open(remotePath)
	if err != nil {
		return fc.wrapRemote("open", remotePath, err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return &LocalIOError{Op: "create", Path: localPath, Err: err}
	}
	defer dst.Close()

	buf := make([]byte, transferChunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return &LocalIOError{Op: "write", Path: localPath, Err: writeErr}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fc.wrapRemote("read", remotePath, readErr)
		}
	}
}

// Upload streams the local file to remotePath in 32 KiB chunks, creating or
// truncating the remote file before the first chunk. Partial remote output is
// left in place on failure.
func (fc *FileChannel) Upload(localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return &LocalIOError{Op: "open", Path: localPath, Err: err}
	}
	defer src.Close()

	dst, err := fc.fs.Create(remotePath)
	if err != nil {
		return fc.wrapRemote("create", remotePath, err)
	}
	defer dst.Close()

	buf := make([]byte, transferChunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return fc.wrapRemote("write", remotePath, writeErr)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return &LocalIOError{Op: "read", Path: localPath, Err: readErr}
		}
	}
}

// DeleteFile removes a remote file.
func (fc *FileChannel) DeleteFile(p string) error {
	if err := fc.fs.Remove(p); err != nil {
		return fc.wrapRemote("remove", p, err)
	}
	return nil
}

// DeleteDirectory removes an empty remote directory.
func (fc *FileChannel) DeleteDirectory(p string) error {
	if err := fc.fs.RemoveDirectory(p); err != nil {
		return fc.wrapRemote("rmdir", p, err)
	}
	return nil
}

// CreateDirectory creates a remote directory (no intermediate directories).
func (fc *FileChannel) CreateDirectory(p string) error {
	if err := fc.fs.Mkdir(p); err != nil {
		return fc.wrapRemote("mkdir", p, err)
	}
	return nil
}

// Rename moves oldPath to newPath.
func (fc *FileChannel) Rename(oldPath, newPath string) error {
	if err := fc.fs.Rename(oldPath, newPath); err != nil {
		return fc.wrapRemote("rename", oldPath, err)
	}
	return nil
}

// ReadFile returns the whole remote file as text. Consumed by the editor.
func (fc *FileChannel) ReadFile(p string) (string, error) {
	f, err := fc.fs.Open(p)
	if err != nil {
		return "", fc.wrapRemote("open", p, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fc.wrapRemote("read", p, err)
	}
	return string(data), nil
}

// WriteFile replaces the remote file's content with text. Consumed by the
// editor.
func (fc *FileChannel) WriteFile(p, content string) error {
	f, err := fc.fs.Create(p)
	if err != nil {
		return fc.wrapRemote("create", p, err)
	}
	defer f.Close()
	if _, err := f.Write([]byte(content)); err != nil {
		return fc.wrapRemote("write", p, err)
	}
	return nil
}

// ParentPath returns the directory one level above p, stopping at the root.
func ParentPath(p string) string {
	if p == "/" || p == "" {
		return "/"
	}
	parent := path.Dir(path.Clean(p))
	if parent == "." {
		return "/"
	}
	return parent
}
