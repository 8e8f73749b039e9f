package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mangareader/services/api/internal/app"
)

type createWorkRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

type updateWorkRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	CoverImage  *string `json:"cover_image"`
	IsPublished *bool   `json:"is_published"`
}

type pagesResponse struct {
	Pages []string `json:"pages"`
	Total int      `json:"total"`
}

func (s *Server) handleListWorks(w http.ResponseWriter, r *http.Request) {
	works, err := s.app.ListPublishedWorks(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, works)
}

func (s *Server) handleGetWork(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	work, err := s.app.GetPublishedWork(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, work)
}

func (s *Server) handleCreateWork(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	var req createWorkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	work, err := s.app.CreateWork(r.Context(), admin, app.WorkInput{Title: req.Title, Description: req.Description})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "catalog.work_create", "success", "admin_id", admin.ID, "manga_id", work.ID)
	writeJSON(w, http.StatusCreated, work)
}

func (s *Server) handleUpdateWork(w http.ResponseWriter, r *http.Request) {
	account, ok := s.currentAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateWorkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	work, err := s.app.UpdateWork(r.Context(), account, id, app.WorkUpdate{
		Title:       req.Title,
		Description: req.Description,
		CoverImage:  req.CoverImage,
		IsPublished: req.IsPublished,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, work)
}

func (s *Server) handleDeleteWork(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.app.DeleteWork(r.Context(), admin, id); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "catalog.work_delete", "success", "admin_id", admin.ID, "manga_id", id)
	writeMessage(w, "Manga deleted successfully")
}

func (s *Server) handleUploadChapter(w http.ResponseWriter, r *http.Request) {
	account, ok := s.currentAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	number, err := strconv.Atoi(strings.TrimSpace(r.FormValue("chapter_number")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "chapter_number must be an integer")
		return
	}
	var title *string
	if raw := strings.TrimSpace(r.FormValue("chapter_title")); raw != "" {
		title = &raw
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()

	chapter, err := s.app.UploadChapter(r.Context(), account, id, app.ChapterUpload{
		Number:  number,
		Title:   title,
		Archive: file,
	})
	if err != nil {
		s.audit(r, "catalog.chapter_upload", "failure", "user_id", account.ID, "manga_id", id, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "catalog.chapter_upload", "success", "user_id", account.ID, "manga_id", id, "chapter_id", chapter.ID)
	writeJSON(w, http.StatusOK, chapter)
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	chapters, err := s.app.ListChapters(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chapters)
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	names, err := s.app.ChapterPages(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	prefix := "/api/chapters/" + strconv.FormatInt(id, 10) + "/pages/"
	pages := make([]string, 0, len(names))
	for _, name := range names {
		pages = append(pages, prefix+url.PathEscape(name))
	}
	writeJSON(w, http.StatusOK, pagesResponse{Pages: pages, Total: len(pages)})
}

func (s *Server) handleReadPage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	data, contentType, err := s.app.ReadPage(r.Context(), id, r.PathValue("filename"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
