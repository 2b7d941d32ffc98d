package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/Marioshad/foodvault/internal/auth"
	"github.com/Marioshad/foodvault/internal/inventory"
	"github.com/Marioshad/foodvault/internal/receipt"
	"github.com/Marioshad/foodvault/internal/reconcile"
)

// multipartOverhead is the room left for boundaries and headers around the file part
const multipartOverhead = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// setSessionCookie sets or, with a nil session, clears the session cookie
func (s *Server) setSessionCookie(w http.ResponseWriter, session *auth.Session) {
	c := &http.Cookie{
		Name:     SessionCookie,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if session == nil {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	} else {
		c.Value = session.ID
		c.Expires = session.ExpiresAt
	}
	http.SetCookie(w, c)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		s.writeError(w, err)
		return
	}

	user, session, err := s.services.Auth.Register(r.Context(), creds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	slog.Info("Registered user", "user_id", user.ID)
	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		s.writeError(w, err)
		return
	}

	user, session, err := s.services.Auth.Login(r.Context(), creds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if err := s.services.Auth.Logout(r.Context(), c.Value); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.setSessionCookie(w, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

// contentTypeOf prefers the part header and falls back to the file extension
func contentTypeOf(header textproto.MIMEHeader, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Get("Content-Type")))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// handleUploadReceipt extracts candidate items from the multipart field "receipt"
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	maxUpload := s.services.Receipts.MaxUpload()
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+multipartOverhead)

	if err := r.ParseMultipartForm(maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, receipt.ErrTooLarge)
			return
		}
		slog.Warn("Error parsing multipart form", "error", err)
		s.writeError(w, receipt.ErrEmpty)
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, header, err := r.FormFile("receipt")
	if err != nil {
		s.writeError(w, receipt.ErrEmpty)
		return
	}
	defer f.Close()

	if header.Size > maxUpload {
		s.writeError(w, receipt.ErrTooLarge)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		s.writeError(w, err)
		return
	}

	user := currentUser(r)
	extraction, err := s.services.Receipts.Extract(r.Context(), user.ID, header.Filename, data, contentTypeOf(header.Header, header.Filename))
	if errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, extraction)
}

// handleCommitReceipt turns selected candidates into food items.
// 201 when everything was created, 200 for a partial commit, 422 when nothing was.
func (s *Server) handleCommitReceipt(w http.ResponseWriter, r *http.Request) {
	var req reconcile.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.services.Reconcile.Commit(r.Context(), currentUser(r).ID, req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusCreated
	switch {
	case len(result.Failed) > 0 && len(result.Created) == 0:
		status = http.StatusUnprocessableEntity
	case len(result.Failed) > 0:
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// handleGetReceiptFile returns the archived image of an upload
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.services.Receipts.ReceiptFile(r.Context(), currentUser(r).ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleDeleteReceiptFile(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Receipts.DeleteReceiptFile(r.Context(), currentUser(r).ID, r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFoodItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.services.Inventory.ListFoodItems(r.Context(), currentUser(r).ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetFoodItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	item, err := s.services.Inventory.GetFoodItem(r.Context(), currentUser(r).ID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleCreateFoodItem(w http.ResponseWriter, r *http.Request) {
	var in inventory.NewFoodItem
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, err)
		return
	}

	item, err := s.services.Inventory.CreateFoodItem(r.Context(), currentUser(r).ID, in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateFoodItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var patch inventory.FoodItemPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.writeError(w, err)
		return
	}

	item, err := s.services.Inventory.UpdateFoodItem(r.Context(), currentUser(r).ID, id, patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteFoodItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.services.Inventory.DeleteFoodItem(r.Context(), currentUser(r).ID, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.services.Inventory.ListLocations(r.Context(), currentUser(r).ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locations)
}

func (s *Server) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var in inventory.NewLocation
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, err)
		return
	}

	location, err := s.services.Inventory.CreateLocation(r.Context(), currentUser(r).ID, in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, location)
}

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var patch inventory.LocationPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.writeError(w, err)
		return
	}

	location, err := s.services.Inventory.UpdateLocation(r.Context(), currentUser(r).ID, id, patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, location)
}

func (s *Server) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.services.Inventory.DeleteLocation(r.Context(), currentUser(r).ID, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := s.services.Analytics.Report(r.Context(), currentUser(r).ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	soon, err := s.services.Analytics.Dashboard(r.Context(), currentUser(r).ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expiringSoon": soon})
}

func (s *Server) handleShoppingList(w http.ResponseWriter, r *http.Request) {
	list, err := s.services.Analytics.ShoppingList(r.Context(), currentUser(r).ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
