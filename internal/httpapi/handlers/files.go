package handlers

import (
	"net/http"
	"os"
)

// Files serves localfs objects from root. Directories are not listed.
func Files(root string) http.Handler {
	return http.FileServer(noListing{http.Dir(root)})
}

type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
