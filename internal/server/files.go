package server

import (
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"cropadviser/internal/app"
	"cropadviser/pkg/domain"
	"cropadviser/pkg/store"
)

type formUpload struct {
	app.FileUpload
	src multipart.File
}

func (u formUpload) close() {
	if u.src != nil {
		_ = u.src.Close()
	}
}

// formFile extracts one multipart file field, bounded by the configured
// upload size.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request, field string) (formUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		return formUpload{}, app.ValidationError{Msg: "invalid or oversized multipart body"}
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return formUpload{}, app.ValidationError{Msg: field + " file is required"}
	}
	return formUpload{
		FileUpload: app.FileUpload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Reader:      file,
		},
		src: file,
	}, nil
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request, actor domain.User) {
	upload, err := s.formFile(w, r, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer upload.close()

	ext := strings.ToLower(filepath.Ext(upload.Name))
	if !s.allowedExt[ext] {
		writeError(w, r, app.ValidationError{Msg: "file type " + ext + " is not allowed"})
		return
	}
	farmerID, _ := strconv.ParseUint(r.FormValue("farmer_id"), 10, 64)

	file, err := s.app.UploadUserFile(r.Context(), actor, app.UploadFileInput{
		FarmerID: uint(farmerID),
		Category: r.FormValue("category"),
		Notes:    r.FormValue("notes"),
		File:     upload.FileUpload,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, file)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, actor domain.User) {
	q := r.URL.Query()
	farmerID, _ := strconv.ParseUint(q.Get("farmer_id"), 10, 64)
	files, err := s.app.ListUserFiles(r.Context(), actor, store.FileFilter{
		FarmerID: uint(farmerID),
		Category: q.Get("category"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, files)
}

func (s *Server) handleFarmerFiles(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	files, err := s.app.ListFilesForFarmer(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, files)
}

type updateFileRequest struct {
	Category *string `json:"category"`
	Notes    *string `json:"notes"`
}

func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateFileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	file, err := s.app.UpdateUserFile(r.Context(), actor, id, app.UpdateFileInput{
		Category: req.Category,
		Notes:    req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, file)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.app.DeleteUserFile(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "file deleted"})
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	url, err := s.app.FileDownloadURL(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"url": url})
}
