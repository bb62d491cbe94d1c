package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-render/internal/ledger"
)

func listOutputFilesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render, ok := lookupRender(w, r, cfg)
		if !ok {
			return
		}

		resp := OutputFilesResponse{RenderID: render.ID, Dir: render.OutputDir, Files: []OutputFileResponse{}}
		if render.OutputDir == "" {
			WriteJSON(w, http.StatusOK, resp)
			return
		}

		entries, err := os.ReadDir(render.OutputDir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			WriteError(w, http.StatusInternalServerError, "failed to read output folder", "INTERNAL_ERROR")
			return
		}

		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			resp.Files = append(resp.Files, OutputFileResponse{
				Name:      e.Name(),
				Size:      info.Size(),
				SizeHuman: humanize.IBytes(uint64(info.Size())),
				ModTime:   info.ModTime().UTC().Format(time.RFC3339),
			})
		}
		sort.Slice(resp.Files, func(i, j int) bool { return resp.Files[i].Name < resp.Files[j].Name })

		WriteJSON(w, http.StatusOK, resp)
	}
}

// serveOutputFileHandler streams one rendered file. http.ServeContent
// handles Range and conditional requests.
func serveOutputFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render, ok := lookupRender(w, r, cfg)
		if !ok {
			return
		}

		name := chi.URLParam(r, "name")
		if !validFileName(name) {
			WriteError(w, http.StatusBadRequest, "invalid file name", "BAD_REQUEST")
			return
		}
		if render.OutputDir == "" {
			WriteError(w, http.StatusNotFound, "render has no output folder", "NOT_FOUND")
			return
		}

		f, err := os.Open(filepath.Join(render.OutputDir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				WriteError(w, http.StatusNotFound, "file not found", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, "failed to open file", "INTERNAL_ERROR")
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || !info.Mode().IsRegular() {
			WriteError(w, http.StatusNotFound, "file not found", "NOT_FOUND")
			return
		}

		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

func validFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func lookupRender(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*ledger.Render, bool) {
	id := chi.URLParam(r, "id")
	render, err := cfg.Store.GetRender(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil, false
	}
	if render == nil {
		WriteError(w, http.StatusNotFound, "render not found", "NOT_FOUND")
		return nil, false
	}
	return render, true
}
