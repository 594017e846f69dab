package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"spacebooks/internal/admingate"
	"spacebooks/internal/app"
	"spacebooks/pkg/domain"
)

type telegramAuthResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleTelegramAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.authLimiter, "too many sign-in attempts") {
		return
	}
	var fields map[string]string
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	profile, err := s.verifier.Verify(fields)
	if err != nil {
		s.audit(r, "auth.telegram", "fail", "reason", err.Error())
		writeError(w, http.StatusUnauthorized, "unauthorized", "telegram verification failed")
		return
	}
	user, err := s.app.UpsertTelegramUser(r.Context(), profile)
	if err != nil {
		writeAppError(w, err)
		return
	}
	token, _, err := s.sessions.Issue(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	s.audit(r, "auth.telegram", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, telegramAuthResponse{Token: token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, ident identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	language, err := s.app.Language(r.Context(), ident.User.ID)
	if err != nil {
		language = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":     ident.User,
		"language": language,
	})
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request, ident identity) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := s.app.SetLanguage(r.Context(), ident.User.ID, req.Language); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"language": strings.ToLower(strings.TrimSpace(req.Language))})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request, ident identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	user, err := s.app.SetWalletAddress(r.Context(), ident.User.ID, req.Address)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.ListBooks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": books,
		"count": len(books),
	})
}

// /api/books/{id}, /api/books/{id}/comments, /api/books/{id}/download,
// /api/books/{id}/cover
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/books/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		book, err := s.app.GetBook(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		coverURL, err := s.app.CoverURL(r.Context(), id)
		if err != nil {
			coverURL = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{"book": book, "coverUrl": coverURL})
		return
	}
	switch parts[1] {
	case "comments":
		s.handleBookComments(w, r, id)
	case "download":
		s.handleBookDownload(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not_found", "not found")
	}
}

func (s *Server) handleBookComments(w http.ResponseWriter, r *http.Request, bookID string) {
	switch r.Method {
	case http.MethodGet:
		comments, err := s.app.ListComments(bookID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": comments,
			"count": len(comments),
		})
	case http.MethodPost:
		ident, ok := s.authorize(w, r)
		if !ok {
			return
		}
		if !s.allowRate(w, r, s.writeLimiter, "too many comments") {
			return
		}
		var req struct {
			Text   string `json:"text"`
			Rating *int   `json:"rating"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		comment, err := s.app.AddComment(ident.User, bookID, req.Text, req.Rating)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, comment)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBookDownload(w http.ResponseWriter, r *http.Request, bookID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	ident, ok := s.authorize(w, r)
	if !ok {
		return
	}
	url, err := s.app.DownloadURL(r.Context(), ident.User.ID, bookID)
	if err != nil {
		s.audit(r, "book.download", "fail", "user_id", ident.User.ID, "book_id", bookID)
		writeAppError(w, err)
		return
	}
	s.audit(r, "book.download", "success", "user_id", ident.User.ID, "book_id", bookID)
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// /api/comments/{id}
func (s *Server) handleCommentByID(w http.ResponseWriter, r *http.Request, ident identity) {
	id := strings.TrimPrefix(r.URL.Path, "/api/comments/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var req struct {
			Text   string `json:"text"`
			Rating *int   `json:"rating"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		comment, err := s.app.UpdateComment(ident.User, id, req.Text, req.Rating)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, comment)
	case http.MethodDelete:
		if err := s.app.DeleteComment(ident.User, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request, ident identity) {
	switch r.Method {
	case http.MethodPost:
		if !s.allowRate(w, r, s.buyLimiter, "too many purchase attempts") {
			return
		}
		var req struct {
			BookID string `json:"bookId"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		result, err := s.app.BuyBook(r.Context(), ident.User.ID, req.BookID)
		if err != nil {
			s.audit(r, "purchase", "fail", "user_id", ident.User.ID, "book_id", req.BookID)
			writeAppError(w, err)
			return
		}
		s.audit(r, "purchase", "success",
			"user_id", ident.User.ID,
			"book_id", req.BookID,
			"transaction_ref", result.Purchase.TransactionRef,
			"durable", result.Durable,
		)
		writeJSON(w, http.StatusCreated, map[string]any{
			"purchase": result.Purchase,
			"durable":  result.Durable,
		})
	case http.MethodGet:
		entitlements, err := s.app.Entitlements(r.Context(), ident.User.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": entitlements,
			"count": len(entitlements),
		})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleProfileTap(w http.ResponseWriter, r *http.Request, ident identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	status := s.gate.Tap(ident.SessionID)
	writeJSON(w, http.StatusOK, map[string]any{
		"state": status.State,
		"taps":  status.Taps,
	})
}

func (s *Server) handleAdminUnlock(w http.ResponseWriter, r *http.Request, ident identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.authLimiter, "too many unlock attempts") {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	ok, err := s.gate.SubmitCode(ident.SessionID, req.Code)
	if err != nil {
		s.audit(r, "admin.unlock", "fail", "user_id", ident.User.ID, "reason", "not_prompting")
		writeError(w, http.StatusConflict, "not_prompting", admingate.ErrNotPrompting.Error())
		return
	}
	if !ok {
		s.audit(r, "admin.unlock", "fail", "user_id", ident.User.ID, "reason", "invalid_code")
		writeError(w, http.StatusForbidden, "invalid_code", "invalid code")
		return
	}
	user, err := s.app.GrantAdmin(r.Context(), ident.User.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "admin.unlock", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

type bookRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Price       *string `json:"price"`
	Author      *string `json:"author"`
	Category    *string `json:"category"`
	Featured    *bool   `json:"featured"`
}

func (s *Server) handleAdminBooks(w http.ResponseWriter, r *http.Request, ident identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req bookRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	in := app.BookInput{}
	if req.Title != nil {
		in.Title = *req.Title
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.Price != nil {
		in.Price = *req.Price
	}
	if req.Author != nil {
		in.Author = *req.Author
	}
	if req.Category != nil {
		in.Category = *req.Category
	}
	if req.Featured != nil {
		in.Featured = *req.Featured
	}
	book, err := s.app.CreateBook(in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "admin.book.create", "success", "user_id", ident.User.ID, "book_id", book.ID)
	writeJSON(w, http.StatusCreated, book)
}

// /api/admin/books/{id}, /api/admin/books/{id}/content,
// /api/admin/books/{id}/cover
func (s *Server) handleAdminBookByID(w http.ResponseWriter, r *http.Request, ident identity) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/books/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "content":
			s.handleAdminUpload(w, r, ident, id, false)
		case "cover":
			s.handleAdminUpload(w, r, ident, id, true)
		default:
			writeError(w, http.StatusNotFound, "not_found", "not found")
		}
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var req bookRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		in := app.BookInput{}
		set := app.BookFieldSet{}
		if req.Title != nil {
			in.Title, set.Title = *req.Title, true
		}
		if req.Description != nil {
			in.Description, set.Description = *req.Description, true
		}
		if req.Price != nil {
			in.Price, set.Price = *req.Price, true
		}
		if req.Author != nil {
			in.Author, set.Author = *req.Author, true
		}
		if req.Category != nil {
			in.Category, set.Category = *req.Category, true
		}
		if req.Featured != nil {
			in.Featured, set.Featured = *req.Featured, true
		}
		book, err := s.app.UpdateBook(id, in, set)
		if err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "admin.book.update", "success", "user_id", ident.User.ID, "book_id", id)
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		if err := s.app.DeleteBook(r.Context(), id); err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "admin.book.delete", "success", "user_id", ident.User.ID, "book_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminUpload(w http.ResponseWriter, r *http.Request, ident identity, bookID string, cover bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file is required (field: file)")
		return
	}
	defer file.Close()
	var book domain.Book
	if cover {
		book, err = s.app.UploadCover(r.Context(), bookID, header.Filename, file, header.Size)
	} else {
		book, err = s.app.UploadContent(r.Context(), bookID, header.Filename, file, header.Size)
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	kind := "content"
	if cover {
		kind = "cover"
	}
	s.audit(r, "admin.book.upload", "success", "user_id", ident.User.ID, "book_id", bookID, "kind", kind)
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request, _ identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
