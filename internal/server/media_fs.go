package server

import (
	"io/fs"
	"net/http"
	"strings"
)

// mediaFS serves uploaded files only. Directories and any path with a
// dot-prefixed segment, such as in-flight .upload-* temp files, look absent.
type mediaFS struct {
	root http.FileSystem
}

func newMediaHandler(dir string) http.Handler {
	return http.StripPrefix("/media/", http.FileServer(mediaFS{root: http.Dir(dir)}))
}

func (m mediaFS) Open(name string) (http.File, error) {
	for _, segment := range strings.Split(name, "/") {
		if strings.HasPrefix(segment, ".") {
			return nil, fs.ErrNotExist
		}
	}
	file, err := m.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}
