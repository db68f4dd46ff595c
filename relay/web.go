package relay

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
)

//go:embed web
var webFS embed.FS

// webHandler serves the embedded browser UI. Paths that don't name an asset
// get index.html so client-side routes survive a reload.
func webHandler() fiber.Handler {
	assets, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}
	return adaptor.HTTPHandler(spaHandler(assets))
}

func spaHandler(assets fs.FS) http.Handler {
	files := http.FileServer(http.FS(assets))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name != "" {
			if info, err := fs.Stat(assets, name); err != nil || info.IsDir() {
				r = r.Clone(r.Context())
				r.URL.Path = "/"
			}
		}
		files.ServeHTTP(w, r)
	})
}
